package routes

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"docchat-platform/models"
	"docchat-platform/services"
	"docchat-platform/utils"
)

// HandleListSources returns all uploaded source documents, newest first.
func HandleListSources(docs *services.DocumentStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		found, err := docs.GetDocuments(c.Request.Context(),
			map[string]string{"type": string(models.DocTypeSource)})
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}

		sources := make([]models.SourceInfo, 0, len(found))
		for _, doc := range found {
			sources = append(sources, models.SourceInfo{
				ID:         doc.ID,
				Name:       doc.Metadata.FileName,
				Type:       doc.Metadata.FileType,
				URL:        doc.Metadata.FileURL,
				UploadedAt: doc.Metadata.UploadedAt,
			})
		}
		sort.Slice(sources, func(i, j int) bool {
			return sources[i].UploadedAt.After(sources[j].UploadedAt)
		})

		c.JSON(http.StatusOK, gin.H{"sources": sources})
	}
}

// HandleDeleteSource deletes one document. The wildcard path accepts
// either a bare document id or its blob pathname form.
func HandleDeleteSource(docs *services.DocumentStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimPrefix(c.Param("id"), "/")
		if raw == "" {
			utils.RespondWithBadRequest(c, "Missing document id", nil)
			return
		}
		id := services.DocumentIDFromBlobKey(raw)

		deleted, err := docs.DeleteDocument(c.Request.Context(), id)
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}
		if !deleted {
			utils.RespondWithNotFound(c, "No document with that id")
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": id})
	}
}
