package routes

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"docchat-platform/internal/blobstore"
	"docchat-platform/internal/config"
	"docchat-platform/internal/queue"
	"docchat-platform/models"
	"docchat-platform/services"
	"docchat-platform/utils"
)

const uploadBlobPrefix = "uploads/"

// HandleUpload ingests a batch of source files. Batch size and per-file
// size limits are enforced before anything touches the stores. Files
// above the sync limit are staged to the blob store and processed by
// the worker; the rest are extracted and ingested inline.
func HandleUpload(cfg *config.Config, docs *services.DocumentStore, blobs blobstore.Store, extractor *services.Extractor, queueClient *asynq.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := c.Request.ParseMultipartForm(cfg.MaxFileSize); err != nil {
			utils.RespondWithBadRequest(c, "Cannot parse multipart form", gin.H{"error": err.Error()})
			return
		}

		form := c.Request.MultipartForm
		files := form.File["files"]
		if len(files) == 0 {
			utils.RespondWithBadRequest(c, "No files provided", nil)
			return
		}
		if len(files) > cfg.MaxUploadBatch {
			utils.RespondWithBadRequest(c,
				fmt.Sprintf("Too many files: %d exceeds the batch limit of %d", len(files), cfg.MaxUploadBatch),
				gin.H{"limit": cfg.MaxUploadBatch})
			return
		}
		for _, header := range files {
			if header.Size > cfg.MaxFileSize {
				utils.RespondWithBadRequest(c,
					fmt.Sprintf("File %s exceeds the size limit", header.Filename),
					gin.H{"limit_bytes": cfg.MaxFileSize})
				return
			}
		}

		results := make([]models.UploadFileResult, 0, len(files))
		for _, header := range files {
			result := models.UploadFileResult{FileName: header.Filename}

			file, err := header.Open()
			if err != nil {
				result.Status = "failed"
				result.Error = "cannot open uploaded file"
				results = append(results, result)
				continue
			}
			data, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				result.Status = "failed"
				result.Error = "cannot read uploaded file"
				results = append(results, result)
				continue
			}

			mimeType := header.Header.Get("Content-Type")

			// Keep the raw original regardless of processing path.
			stagedPath := uploadBlobPrefix + uuid.NewString()[:8] + "-" + sanitizeFileName(header.Filename)
			if _, err := blobs.Put(c.Request.Context(), stagedPath, data, mimeType); err != nil {
				result.Status = "failed"
				result.Error = "could not stage upload: " + err.Error()
				results = append(results, result)
				continue
			}

			if header.Size > cfg.SyncProcessingLimit && queueClient != nil {
				task, err := queue.NewIngestTask(header.Filename, mimeType, string(models.DocTypeSource), stagedPath)
				if err == nil {
					_, err = queueClient.Enqueue(task)
				}
				if err != nil {
					result.Status = "failed"
					result.Error = "could not queue ingestion: " + err.Error()
				} else {
					result.Status = "queued"
				}
				results = append(results, result)
				continue
			}

			text, format, err := extractor.ExtractText(data, mimeType, header.Filename)
			if err != nil {
				result.Status = "failed"
				result.Error = err.Error()
				results = append(results, result)
				continue
			}

			doc, err := docs.IngestExtracted(c.Request.Context(), text, format,
				models.NewSourceMetadata(header.Filename, mimeType))
			if err != nil {
				result.Status = "failed"
				result.Error = err.Error()
				results = append(results, result)
				continue
			}

			result.Status = "ingested"
			result.DocumentID = doc.ID
			result.Chunks = doc.Metadata.TotalParts
			if result.Chunks == 0 {
				result.Chunks = 1
			}
			results = append(results, result)
		}

		status := http.StatusOK
		for _, r := range results {
			if r.Status == "failed" {
				status = http.StatusMultiStatus
				break
			}
		}
		c.JSON(status, gin.H{"results": results})
	}
}

func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	return strings.ReplaceAll(name, "\\", "_")
}
