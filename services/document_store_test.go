package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"docchat-platform/internal/apperrors"
	"docchat-platform/internal/blobstore"
	"docchat-platform/internal/vectorstore"
	"docchat-platform/models"
)

// stubEmbedder produces deterministic vectors keyed on content so
// similarity ordering in tests is predictable.
type stubEmbedder struct{}

func (stubEmbedder) Dimension() int { return 3 }

func (e stubEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (stubEmbedder) vector(text string) []float32 {
	if strings.Contains(text, "alpha") {
		return []float32{1, 0, 0}
	}
	if strings.Contains(text, "beta") {
		return []float32{0.7, 0.7, 0}
	}
	return []float32{0, 0, 1}
}

func newTestStore(t *testing.T) (*DocumentStore, *vectorstore.MemoryStore, *blobstore.MemoryStore) {
	t.Helper()
	vectors := vectorstore.NewMemoryStore(3)
	blobs := blobstore.NewMemoryStore()
	chunker := NewChunkingService(25, 10) // 100-char budget
	return NewDocumentStore(stubEmbedder{}, vectors, blobs, chunker, nil, nil), vectors, blobs
}

func TestAddDocumentChunksFirst(t *testing.T) {
	ctx := context.Background()
	ds, vectors, blobs := newTestStore(t)

	paragraphs := make([]string, 6)
	for i := range paragraphs {
		paragraphs[i] = strings.Repeat("alpha text ", 6)
	}
	content := strings.Join(paragraphs, "\n\n")

	doc, err := ds.AddDocument(ctx, content, models.NewSourceMetadata("report.txt", "text/plain"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if vectors.Len() < 2 {
		t.Fatalf("expected multiple chunk documents, stored %d", vectors.Len())
	}
	if doc.Metadata.PartIndex != 1 || doc.Metadata.TotalParts != vectors.Len() {
		t.Fatalf("part tags wrong: index=%d total=%d stored=%d",
			doc.Metadata.PartIndex, doc.Metadata.TotalParts, vectors.Len())
	}
	if !doc.Metadata.HasBlob {
		t.Fatal("expected blob linkage on stored document")
	}
	if _, err := blobs.Get(ctx, DocumentBlobKey(doc.ID)); err != nil {
		t.Fatalf("document blob missing: %v", err)
	}
}

func TestAddDocumentSmallContentSingleChunk(t *testing.T) {
	ctx := context.Background()
	ds, vectors, _ := newTestStore(t)

	doc, err := ds.AddDocument(ctx, "a short alpha paragraph", models.NewSourceMetadata("note.txt", "text/plain"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if vectors.Len() != 1 {
		t.Fatalf("expected one stored document, got %d", vectors.Len())
	}
	if doc.Metadata.PartIndex != 0 || doc.Metadata.TotalParts != 0 {
		t.Fatal("single-chunk documents must not carry part tags")
	}
}

func TestAddDocumentEmptyContent(t *testing.T) {
	ds, _, _ := newTestStore(t)
	_, err := ds.AddDocument(context.Background(), "  \n ", models.NewSourceMetadata("empty.txt", "text/plain"))
	if err == nil {
		t.Fatal("expected a validation error for empty content")
	}
}

func TestSearchSimilarRankingAndFilter(t *testing.T) {
	ctx := context.Background()
	ds, _, _ := newTestStore(t)

	mustAdd := func(content string, meta models.DocumentMetadata) {
		t.Helper()
		if _, err := ds.AddDocument(ctx, content, meta); err != nil {
			t.Fatalf("add %s: %v", meta.FileName, err)
		}
	}
	mustAdd("alpha content about rockets", models.NewSourceMetadata("a.txt", "text/plain"))
	mustAdd("beta content about engines", models.NewSourceMetadata("b.txt", "text/plain"))
	mustAdd("gamma content about nothing", models.NewConversationMetadata("chat-1"))

	results, err := ds.SearchSimilar(ctx, "alpha question", map[string]string{"type": "source"}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("filter should keep only sources, got %d results", len(results))
	}
	if results[0].Metadata.FileName != "a.txt" {
		t.Fatalf("best match should be a.txt, got %s", results[0].Metadata.FileName)
	}
	if results[0].Metadata.Score <= results[1].Metadata.Score {
		t.Fatal("scores must be descending")
	}

	// topK truncates.
	results, err = ds.SearchSimilar(ctx, "alpha question", nil, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("topK=1 should return one result, got %d", len(results))
	}
}

func TestSearchSimilarRequiresEmbedder(t *testing.T) {
	ds := NewDocumentStore(nil, vectorstore.NewMemoryStore(3), blobstore.NewMemoryStore(), NewChunkingService(25, 10), nil, nil)
	_, err := ds.SearchSimilar(context.Background(), "anything", nil, 5)
	if !errors.Is(err, apperrors.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	ds, vectors, blobs := newTestStore(t)

	doc, err := ds.AddDocument(ctx, "alpha content worth deleting", models.NewSourceMetadata("del.txt", "text/plain"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	deleted, err := ds.DeleteDocument(ctx, doc.ID)
	if err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}
	if vectors.Len() != 0 {
		t.Fatalf("vector record survived deletion")
	}
	if _, err := blobs.Get(ctx, DocumentBlobKey(doc.ID)); err != blobstore.ErrBlobNotFound {
		t.Fatalf("blob survived deletion: %v", err)
	}

	// Idempotent: second delete reports not-found without error.
	deleted, err = ds.DeleteDocument(ctx, doc.ID)
	if err != nil || deleted {
		t.Fatalf("second delete: deleted=%v err=%v", deleted, err)
	}
}

func TestAddDocumentToleratesBlobFailure(t *testing.T) {
	ctx := context.Background()
	vectors := vectorstore.NewMemoryStore(3)
	ds := NewDocumentStore(stubEmbedder{}, vectors, failingBlobStore{}, NewChunkingService(25, 10), nil, nil)

	doc, err := ds.AddDocument(ctx, "alpha content that still ingests", models.NewSourceMetadata("x.txt", "text/plain"))
	if err != nil {
		t.Fatalf("blob failure must not abort ingestion: %v", err)
	}
	if doc.Metadata.HasBlob || doc.Metadata.FileURL != "" {
		t.Fatal("document must not claim blob linkage after a failed write")
	}
	if vectors.Len() != 1 {
		t.Fatalf("vector record missing, len=%d", vectors.Len())
	}
}

func TestAddDocumentRejectsWrongDimensionEmbedding(t *testing.T) {
	ctx := context.Background()
	vectors := vectorstore.NewMemoryStore(3)
	blobs := blobstore.NewMemoryStore()
	ds := NewDocumentStore(wrongDimEmbedder{}, vectors, blobs, NewChunkingService(25, 10), nil, nil)

	_, err := ds.AddDocument(ctx, "alpha content with a bad vector", models.NewSourceMetadata("bad.txt", "text/plain"))
	var embErr *apperrors.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("expected an embedding error, got %v", err)
	}
	if vectors.Len() != 0 {
		t.Fatalf("no document may be stored after a dimension mismatch, len=%d", vectors.Len())
	}
	if infos, _ := blobs.List(ctx, ""); len(infos) != 0 {
		t.Fatalf("no blob may be written after a dimension mismatch, got %d", len(infos))
	}
}

func TestSearchSimilarRoundTripsContent(t *testing.T) {
	ctx := context.Background()
	ds, _, _ := newTestStore(t)

	const text = "alpha content about rockets"
	if _, err := ds.AddDocument(ctx, text, models.NewSourceMetadata("a.txt", "text/plain")); err != nil {
		t.Fatalf("add: %v", err)
	}

	results, err := ds.SearchSimilar(ctx, "alpha question", nil, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	if results[0].Content != text {
		t.Fatalf("content did not survive the round trip: %q", results[0].Content)
	}
	if s := results[0].Metadata.Score; s < -1 || s > 1 {
		t.Fatalf("cosine score out of range: %v", s)
	}
}

func TestAddDocumentDoesNotDoubleWrapStorageErrors(t *testing.T) {
	ctx := context.Background()
	// The store is sized for 4-dimension vectors, so its own typed error
	// surfaces from Upsert.
	ds := NewDocumentStore(stubEmbedder{}, vectorstore.NewMemoryStore(4), nil, NewChunkingService(25, 10), nil, nil)

	_, err := ds.AddDocument(ctx, "alpha content that cannot land", models.NewSourceMetadata("x.txt", "text/plain"))
	var storErr *apperrors.StorageError
	if !errors.As(err, &storErr) {
		t.Fatalf("expected a storage error, got %v", err)
	}
	if n := strings.Count(err.Error(), "vector store upsert failed"); n != 1 {
		t.Fatalf("error message wrapped %d times: %q", n, err.Error())
	}
}

// wrongDimEmbedder claims one dimension and produces another.
type wrongDimEmbedder struct{}

func (wrongDimEmbedder) Dimension() int { return 3 }

func (wrongDimEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0, 0}
	}
	return out, nil
}

func (wrongDimEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0, 0, 0}, nil
}

type failingBlobStore struct{}

var errBlobDown = errors.New("blob backend down")

func (failingBlobStore) Put(ctx context.Context, pathname string, data []byte, contentType string) (blobstore.BlobInfo, error) {
	return blobstore.BlobInfo{}, errBlobDown
}
func (failingBlobStore) Get(ctx context.Context, pathname string) ([]byte, error) {
	return nil, errBlobDown
}
func (failingBlobStore) List(ctx context.Context, prefix string) ([]blobstore.BlobInfo, error) {
	return nil, errBlobDown
}
func (failingBlobStore) Head(ctx context.Context, pathname string) (blobstore.BlobInfo, error) {
	return blobstore.BlobInfo{}, errBlobDown
}
func (failingBlobStore) Delete(ctx context.Context, url string) error { return errBlobDown }
