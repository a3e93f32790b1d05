package blobstore

import (
	"bytes"
	"context"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	info, err := store.Put(ctx, "documents/a.json", []byte(`{"id":"a"}`), "application/json")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.URL != "blob://documents/a.json" {
		t.Fatalf("unexpected url %q", info.URL)
	}

	data, err := store.Get(ctx, "documents/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(data, []byte(`{"id":"a"}`)) {
		t.Fatalf("payload mismatch: %s", data)
	}
}

func TestMemoryStoreListPrefix(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Put(ctx, "documents/a.json", []byte("a"), "application/json")
	store.Put(ctx, "documents/b.json", []byte("b"), "application/json")
	store.Put(ctx, "uploads/raw.bin", []byte("r"), "application/octet-stream")

	infos, err := store.List(ctx, "documents/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("prefix filter failed, got %d entries", len(infos))
	}
	if infos[0].Pathname != "documents/a.json" || infos[1].Pathname != "documents/b.json" {
		t.Fatalf("unexpected order: %v", infos)
	}
}

func TestMemoryStoreDeleteAcceptsBothForms(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Put(ctx, "documents/a.json", []byte("a"), "application/json")
	store.Put(ctx, "documents/b.json", []byte("b"), "application/json")

	if err := store.Delete(ctx, "blob://documents/a.json"); err != nil {
		t.Fatalf("delete by url: %v", err)
	}
	if err := store.Delete(ctx, "documents/b.json"); err != nil {
		t.Fatalf("delete by pathname: %v", err)
	}
	if err := store.Delete(ctx, "documents/a.json"); err != ErrBlobNotFound {
		t.Fatalf("expected ErrBlobNotFound, got %v", err)
	}
	if _, err := store.Head(ctx, "documents/b.json"); err != ErrBlobNotFound {
		t.Fatalf("expected ErrBlobNotFound after delete, got %v", err)
	}
}
