package blobstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory blob backend for tests and local runs.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
}

type memoryBlob struct {
	data        []byte
	contentType string
	uploadedAt  time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]memoryBlob)}
}

func (s *MemoryStore) Put(ctx context.Context, pathname string, data []byte, contentType string) (BlobInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	blob := memoryBlob{data: cp, contentType: contentType, uploadedAt: time.Now().UTC()}
	s.blobs[pathname] = blob
	return s.info(pathname, blob), nil
}

func (s *MemoryStore) Get(ctx context.Context, pathname string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[pathname]
	if !ok {
		return nil, ErrBlobNotFound
	}
	cp := make([]byte, len(blob.data))
	copy(cp, blob.data)
	return cp, nil
}

func (s *MemoryStore) List(ctx context.Context, prefix string) ([]BlobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]BlobInfo, 0, len(s.blobs))
	for pathname, blob := range s.blobs {
		if !strings.HasPrefix(pathname, prefix) {
			continue
		}
		infos = append(infos, s.info(pathname, blob))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Pathname < infos[j].Pathname })
	return infos, nil
}

func (s *MemoryStore) Head(ctx context.Context, pathname string) (BlobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[pathname]
	if !ok {
		return BlobInfo{}, ErrBlobNotFound
	}
	return s.info(pathname, blob), nil
}

func (s *MemoryStore) Delete(ctx context.Context, url string) error {
	pathname := PathnameFromURL(url)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[pathname]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, pathname)
	return nil
}

func (s *MemoryStore) info(pathname string, blob memoryBlob) BlobInfo {
	return BlobInfo{
		Pathname:    pathname,
		URL:         URLFor(pathname),
		Size:        int64(len(blob.data)),
		ContentType: blob.contentType,
		UploadedAt:  blob.uploadedAt,
	}
}
