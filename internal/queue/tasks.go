package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"docchat-platform/internal/blobstore"
	"docchat-platform/models"
	"docchat-platform/services"
)

const TaskIngestDocument = "document:ingest"

// IngestPayload references a staged upload in the blob store. The raw
// bytes are not carried through Redis.
type IngestPayload struct {
	FileName     string `json:"file_name"`
	FileType     string `json:"file_type"`
	DocType      string `json:"doc_type"`
	BlobPathname string `json:"blob_pathname"`
}

func NewIngestTask(fileName, fileType, docType, blobPathname string) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestPayload{
		FileName:     fileName,
		FileType:     fileType,
		DocType:      docType,
		BlobPathname: blobPathname,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// TaskProcessor runs queued ingestion in the worker process.
type TaskProcessor struct {
	docs      *services.DocumentStore
	blobs     blobstore.Store
	extractor *services.Extractor
	log       *slog.Logger
}

func NewTaskProcessor(docs *services.DocumentStore, blobs blobstore.Store, extractor *services.Extractor, log *slog.Logger) *TaskProcessor {
	if log == nil {
		log = slog.Default()
	}
	return &TaskProcessor{docs: docs, blobs: blobs, extractor: extractor, log: log}
}

func (p *TaskProcessor) ProcessIngest(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	p.log.Info("processing queued ingest",
		"file", payload.FileName, "blob", payload.BlobPathname)

	data, err := p.blobs.Get(ctx, payload.BlobPathname)
	if err != nil {
		if err == blobstore.ErrBlobNotFound {
			return fmt.Errorf("staged upload %s is gone: %w", payload.BlobPathname, asynq.SkipRetry)
		}
		return err
	}

	text, format, err := p.extractor.ExtractText(data, payload.FileType, payload.FileName)
	if err != nil {
		// Extraction failures are deterministic, retrying will not help.
		return fmt.Errorf("extract %s: %v: %w", payload.FileName, err, asynq.SkipRetry)
	}

	meta := models.NewSourceMetadata(payload.FileName, payload.FileType)
	if payload.DocType != "" {
		meta.Type = models.DocumentType(payload.DocType)
	}
	doc, err := p.docs.IngestExtracted(ctx, text, format, meta)
	if err != nil {
		return err
	}

	p.log.Info("queued ingest complete", "file", payload.FileName, "docId", doc.ID)
	return nil
}
