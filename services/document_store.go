package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docchat-platform/internal/ai"
	"docchat-platform/internal/apperrors"
	"docchat-platform/internal/blobstore"
	"docchat-platform/internal/telemetry"
	"docchat-platform/internal/vectorstore"
	"docchat-platform/models"
)

// maxScanRecords bounds the full-set fetch used for cache refreshes and
// reconciliation.
const maxScanRecords = 10000

// documentBlobPrefix scopes serialized document records from other blob
// usage such as raw uploaded originals.
const documentBlobPrefix = "documents/"

var idSanitizeRegex = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// DocumentStore orchestrates ingestion and retrieval: content is chunked,
// each chunk embedded and persisted into the vector store, and a JSON
// record of each document optionally mirrored into the blob store.
//
// The in-memory cache is advisory: it is reloaded from backing storage at
// the start of every read so staleness is never observable; concurrent
// writers and reconciliation are allowed to race (eventual consistency).
type DocumentStore struct {
	mu       sync.Mutex
	cache    map[string]*models.Document
	embedder ai.Embedder
	vectors  vectorstore.Store
	blobs    blobstore.Store // nil disables blob mirroring
	chunker  *ChunkingService
	metrics  *telemetry.Metrics
	log      *slog.Logger
}

func NewDocumentStore(embedder ai.Embedder, vectors vectorstore.Store, blobs blobstore.Store, chunker *ChunkingService, metrics *telemetry.Metrics, log *slog.Logger) *DocumentStore {
	if log == nil {
		log = slog.Default()
	}
	return &DocumentStore{
		cache:    make(map[string]*models.Document),
		embedder: embedder,
		vectors:  vectors,
		blobs:    blobs,
		chunker:  chunker,
		metrics:  metrics,
		log:      log,
	}
}

// AddDocument ingests already-extracted text. The content is always
// chunked first; each chunk is persisted as its own Document, multi-chunk
// sources tagged with part indices. The first stored Document is
// returned. Blob store failure keeps the document without blob linkage
// (a later reconcile pass prunes it); vector store failure is fatal.
func (ds *DocumentStore) AddDocument(ctx context.Context, content string, meta models.DocumentMetadata) (*models.Document, error) {
	if ds.embedder == nil {
		return nil, apperrors.ErrNotInitialized
	}
	start := time.Now()

	chunks := ds.chunker.Split(content)
	if len(chunks) == 0 {
		return nil, &apperrors.ValidationError{Field: "content", Reason: "no extractable content"}
	}

	embeddings, err := ds.embedder.EmbedTexts(ctx, chunks)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(chunks) {
		return nil, &apperrors.EmbeddingError{
			Reason: fmt.Sprintf("got %d embeddings for %d chunks", len(embeddings), len(chunks)),
		}
	}
	for i, vec := range embeddings {
		if len(vec) != ds.embedder.Dimension() {
			return nil, &apperrors.EmbeddingError{
				Reason: fmt.Sprintf("chunk %d: embedding has %d dimensions, want %d", i, len(vec), ds.embedder.Dimension()),
			}
		}
	}

	docs := make([]*models.Document, 0, len(chunks))
	for i, chunk := range chunks {
		m := meta
		if len(chunks) > 1 {
			m.PartIndex = i + 1
			m.TotalParts = len(chunks)
		}
		doc := &models.Document{
			ID:        deriveDocumentID(m.FileName),
			Content:   chunk,
			Embedding: embeddings[i],
			Metadata:  m,
		}

		if ds.blobs != nil {
			if info, err := ds.putDocumentBlob(ctx, doc); err != nil {
				ds.log.Warn("blob write failed, keeping document without blob linkage",
					"id", doc.ID, "error", err)
			} else {
				doc.Metadata.FileURL = info.URL
				doc.Metadata.HasBlob = true
			}
		}

		if err := ds.vectors.Upsert(ctx, recordFromDocument(doc)); err != nil {
			return nil, storageErr("vector", "upsert", err)
		}
		docs = append(docs, doc)
	}

	ds.mu.Lock()
	for _, doc := range docs {
		ds.cache[doc.ID] = doc
	}
	ds.mu.Unlock()

	ds.metrics.RecordIngestDuration(ctx, time.Since(start).Seconds())
	ds.log.Info("document ingested",
		"file", meta.FileName, "type", meta.Type, "chunks", len(docs))
	return docs[0], nil
}

// IngestExtracted stores extractor output, flattening transcripts to
// their spoken text before chunking.
func (ds *DocumentStore) IngestExtracted(ctx context.Context, text string, format ContentFormat, meta models.DocumentMetadata) (*models.Document, error) {
	if format == FormatTranscript {
		if flat, ok := ds.chunker.FlattenTranscript(text); ok {
			text = flat
		}
	}
	return ds.AddDocument(ctx, text, meta)
}

// SearchSimilar embeds the query and returns the top-K documents by
// cosine similarity, filtered by exact-match AND semantics over the
// provided metadata fields. Scores are attached to the results only.
func (ds *DocumentStore) SearchSimilar(ctx context.Context, query string, filter map[string]string, topK int) ([]*models.Document, error) {
	if ds.embedder == nil {
		return nil, apperrors.ErrNotInitialized
	}
	if topK <= 0 {
		topK = 5
	}

	if err := ds.refreshCache(ctx); err != nil {
		return nil, err
	}

	queryVec, err := ds.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	ds.mu.Lock()
	candidates := make([]*models.Document, 0, len(ds.cache))
	for _, doc := range ds.cache {
		if matchesMetadataFilter(doc.Metadata, filter) {
			candidates = append(candidates, doc)
		}
	}
	ds.mu.Unlock()

	scored := make([]*models.Document, 0, len(candidates))
	for _, doc := range candidates {
		cp := *doc
		cp.Metadata.Score = vectorstore.CosineSimilarity(queryVec, doc.Embedding)
		scored = append(scored, &cp)
	}
	sort.Slice(scored, func(i, j int) bool {
		return scored[i].Metadata.Score > scored[j].Metadata.Score
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// GetDocuments returns every document matching the filter, unranked.
func (ds *DocumentStore) GetDocuments(ctx context.Context, filter map[string]string) ([]*models.Document, error) {
	if err := ds.refreshCache(ctx); err != nil {
		return nil, err
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	docs := make([]*models.Document, 0, len(ds.cache))
	for _, doc := range ds.cache {
		if matchesMetadataFilter(doc.Metadata, filter) {
			cp := *doc
			docs = append(docs, &cp)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// DeleteDocument removes the document from the blob store and the vector
// store, remote stores first. If a remote deletion fails the in-memory
// state is left untouched and the error returned. Returns whether the
// record existed; deleting a missing id is not an error.
func (ds *DocumentStore) DeleteDocument(ctx context.Context, id string) (bool, error) {
	if err := ds.refreshCache(ctx); err != nil {
		return false, err
	}

	ds.mu.Lock()
	doc, ok := ds.cache[id]
	ds.mu.Unlock()
	if !ok {
		return false, nil
	}

	if doc.Metadata.HasBlob && ds.blobs != nil {
		if err := ds.blobs.Delete(ctx, doc.Metadata.FileURL); err != nil && err != blobstore.ErrBlobNotFound {
			return false, storageErr("blob", "delete", err)
		}
	}

	if err := ds.vectors.DeleteByID(ctx, id); err != nil {
		return false, storageErr("vector", "delete", err)
	}

	ds.mu.Lock()
	delete(ds.cache, id)
	ds.mu.Unlock()
	return true, nil
}

// DeleteDocuments bulk-deletes everything matching the filter. One
// failed deletion does not abort the rest; the count of successful
// deletions is returned.
func (ds *DocumentStore) DeleteDocuments(ctx context.Context, filter map[string]string) (int, error) {
	docs, err := ds.GetDocuments(ctx, filter)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, doc := range docs {
		ok, err := ds.DeleteDocument(ctx, doc.ID)
		if err != nil {
			ds.log.Warn("bulk delete: skipping document after failure", "id", doc.ID, "error", err)
			continue
		}
		if ok {
			deleted++
		}
	}
	return deleted, nil
}

// refreshCache reloads the full record set from the vector store.
func (ds *DocumentStore) refreshCache(ctx context.Context) error {
	zero := make([]float32, ds.embedderDimension())
	matches, err := ds.vectors.QueryTopK(ctx, zero, maxScanRecords, nil)
	if err != nil {
		return storageErr("vector", "scan", err)
	}

	fresh := make(map[string]*models.Document, len(matches))
	for _, match := range matches {
		doc, err := documentFromRecord(match.Record)
		if err != nil {
			ds.log.Warn("skipping undecodable vector record", "id", match.ID, "error", err)
			continue
		}
		fresh[doc.ID] = doc
	}

	ds.mu.Lock()
	ds.cache = fresh
	ds.mu.Unlock()
	return nil
}

func (ds *DocumentStore) embedderDimension() int {
	if ds.embedder != nil {
		return ds.embedder.Dimension()
	}
	return 0
}

func (ds *DocumentStore) putDocumentBlob(ctx context.Context, doc *models.Document) (blobstore.BlobInfo, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return blobstore.BlobInfo{}, err
	}
	return ds.blobs.Put(ctx, DocumentBlobKey(doc.ID), payload, "application/json")
}

// DocumentBlobKey maps a document id to its blob pathname.
func DocumentBlobKey(id string) string {
	return documentBlobPrefix + id + ".json"
}

// DocumentIDFromBlobKey reverses DocumentBlobKey. A bare id passes
// through, so deletion accepts both forms.
func DocumentIDFromBlobKey(key string) string {
	key = strings.TrimPrefix(key, documentBlobPrefix)
	return strings.TrimSuffix(key, ".json")
}

// deriveDocumentID builds a unique id from the source filename, the
// creation time and a random suffix. Ids are never reused.
func deriveDocumentID(fileName string) string {
	base := strings.TrimSuffix(fileName, fileNameExt(fileName))
	base = idSanitizeRegex.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-")
	if base == "" {
		base = "doc"
	}
	return fmt.Sprintf("%s-%d-%s", base, time.Now().UnixMilli(), uuid.NewString()[:8])
}

func fileNameExt(fileName string) string {
	if idx := strings.LastIndex(fileName, "."); idx >= 0 {
		return fileName[idx:]
	}
	return ""
}

// storageErr wraps err as a StorageError unless the backing store
// already typed it, so callers never see doubled wrapping.
func storageErr(backend, op string, err error) error {
	var se *apperrors.StorageError
	if errors.As(err, &se) {
		return err
	}
	return &apperrors.StorageError{Backend: backend, Op: op, Err: err}
}

func matchesMetadataFilter(meta models.DocumentMetadata, filter map[string]string) bool {
	for key, want := range filter {
		if meta.Field(key) != want {
			return false
		}
	}
	return true
}

// recordFromDocument flattens a document into the vector store's view;
// content rides in metadata so search hits need no second lookup.
func recordFromDocument(doc *models.Document) vectorstore.Record {
	meta := map[string]any{
		"content":    doc.Content,
		"fileName":   doc.Metadata.FileName,
		"fileType":   doc.Metadata.FileType,
		"type":       string(doc.Metadata.Type),
		"uploadedAt": doc.Metadata.UploadedAt.Format(time.RFC3339Nano),
	}
	if doc.Metadata.FileURL != "" {
		meta["fileUrl"] = doc.Metadata.FileURL
	}
	if doc.Metadata.HasBlob {
		meta["hasBlob"] = true
	}
	if doc.Metadata.TotalParts > 0 {
		meta["partIndex"] = doc.Metadata.PartIndex
		meta["totalParts"] = doc.Metadata.TotalParts
	}
	return vectorstore.Record{ID: doc.ID, Vector: doc.Embedding, Metadata: meta}
}

func documentFromRecord(rec vectorstore.Record) (*models.Document, error) {
	content, _ := rec.Metadata["content"].(string)
	meta := models.DocumentMetadata{
		FileName: stringField(rec.Metadata, "fileName"),
		FileType: stringField(rec.Metadata, "fileType"),
		Type:     models.DocumentType(stringField(rec.Metadata, "type")),
		FileURL:  stringField(rec.Metadata, "fileUrl"),
	}
	if raw := stringField(rec.Metadata, "uploadedAt"); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			meta.UploadedAt = ts
		}
	}
	if hasBlob, ok := rec.Metadata["hasBlob"].(bool); ok {
		meta.HasBlob = hasBlob
	}
	meta.PartIndex = intField(rec.Metadata, "partIndex")
	meta.TotalParts = intField(rec.Metadata, "totalParts")

	if meta.Type == "" {
		return nil, fmt.Errorf("record %s has no document type", rec.ID)
	}
	return &models.Document{
		ID:        rec.ID,
		Content:   content,
		Embedding: rec.Vector,
		Metadata:  meta,
	}, nil
}

func stringField(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

func intField(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
