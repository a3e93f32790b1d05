package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"docchat-platform/internal/blobstore"
	"docchat-platform/internal/telemetry"
	"docchat-platform/internal/vectorstore"
	"docchat-platform/models"
)

// Reconciler repairs drift between the vector store and the blob store:
// vector records without a live blob behind them are pruned, and document
// blobs no vector record references are removed. Each direction is
// best-effort; individual failures are reported, not fatal.
type Reconciler struct {
	vectors   vectorstore.Store
	blobs     blobstore.Store
	dimension int
	metrics   *telemetry.Metrics
	log       *slog.Logger
}

func NewReconciler(vectors vectorstore.Store, blobs blobstore.Store, dimension int, metrics *telemetry.Metrics, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{vectors: vectors, blobs: blobs, dimension: dimension, metrics: metrics, log: log}
}

// Reconcile runs one full pass. It is idempotent: a second pass over an
// unchanged system prunes nothing.
func (r *Reconciler) Reconcile(ctx context.Context) (*models.ReconcileResponse, error) {
	report := &models.ReconcileResponse{}

	matches, err := r.vectors.QueryTopK(ctx, make([]float32, r.dimension), maxScanRecords, nil)
	if err != nil {
		return nil, fmt.Errorf("reconcile: scanning vector store: %w", err)
	}

	blobs, err := r.blobs.List(ctx, documentBlobPrefix)
	if err != nil {
		return nil, fmt.Errorf("reconcile: listing blob store: %w", err)
	}
	blobURLs := make(map[string]bool, len(blobs))
	for _, info := range blobs {
		blobURLs[info.URL] = true
	}

	referenced := make(map[string]bool, len(matches))
	for _, match := range matches {
		url := stringField(match.Metadata, "fileUrl")
		if url != "" && blobURLs[url] {
			referenced[url] = true
			continue
		}

		// No blob linkage, or linkage to a blob that is gone: the
		// record is an orphan either way.
		if err := r.vectors.DeleteByID(ctx, match.ID); err != nil {
			report.Inconsistencies = append(report.Inconsistencies,
				fmt.Sprintf("vector %s: dangling blob reference %q could not be pruned: %v", match.ID, url, err))
			continue
		}
		report.PrunedFromVectorStore++
		r.log.Info("reconcile: pruned vector record with missing blob", "id", match.ID, "url", url)
	}

	for _, info := range blobs {
		if referenced[info.URL] {
			continue
		}
		if !strings.HasPrefix(info.Pathname, documentBlobPrefix) {
			continue
		}
		if err := r.blobs.Delete(ctx, info.URL); err != nil && err != blobstore.ErrBlobNotFound {
			report.Inconsistencies = append(report.Inconsistencies,
				fmt.Sprintf("blob %s: orphan could not be pruned: %v", info.Pathname, err))
			continue
		}
		report.PrunedFromBlobStore++
		r.log.Info("reconcile: pruned orphaned document blob", "pathname", info.Pathname)
	}

	r.metrics.RecordReconcilePruned(ctx, report.PrunedFromVectorStore+report.PrunedFromBlobStore)
	r.log.Info("reconcile pass complete",
		"prunedVectors", report.PrunedFromVectorStore,
		"prunedBlobs", report.PrunedFromBlobStore,
		"inconsistencies", len(report.Inconsistencies))
	return report, nil
}
