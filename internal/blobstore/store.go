package blobstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrBlobNotFound is returned by Head/Get/Delete for unknown keys.
var ErrBlobNotFound = errors.New("blob not found")

// BlobInfo describes one stored blob.
type BlobInfo struct {
	Pathname    string    `json:"pathname"`
	URL         string    `json:"url"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Store is a key -> bytes backend. Pathnames are namespaced by prefix
// ("documents/" for serialized document records, "uploads/" for raw
// originals); URLs are the canonical external reference form.
type Store interface {
	Put(ctx context.Context, pathname string, data []byte, contentType string) (BlobInfo, error)
	Get(ctx context.Context, pathname string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Head(ctx context.Context, pathname string) (BlobInfo, error)
	Delete(ctx context.Context, url string) error
}

const urlScheme = "blob://"

// URLFor returns the canonical URL for a pathname.
func URLFor(pathname string) string {
	return urlScheme + pathname
}

// PathnameFromURL reverses URLFor. A bare pathname passes through so
// callers can hand either form to Delete.
func PathnameFromURL(url string) string {
	return strings.TrimPrefix(url, urlScheme)
}
