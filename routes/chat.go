package routes

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docchat-platform/models"
	"docchat-platform/services"
	"docchat-platform/utils"
)

// HandleChatQuery runs the analysis pipeline and streams its output as
// server-sent events. Each fragment becomes one `data:` frame; stage
// markers and the terminal [DONE] ride inline in the same stream.
func HandleChatQuery(pipeline *services.AnalysisPipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid chat request", gin.H{"error": err.Error()})
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Writer.WriteHeader(http.StatusOK)

		flusher, canFlush := c.Writer.(http.Flusher)

		emit := func(fragment string) error {
			if err := c.Request.Context().Err(); err != nil {
				return err
			}
			// A fragment containing newlines becomes successive data:
			// lines of the same event.
			for _, line := range strings.Split(fragment, "\n") {
				if _, err := c.Writer.WriteString("data: " + line + "\n"); err != nil {
					return err
				}
			}
			if _, err := c.Writer.WriteString("\n"); err != nil {
				return err
			}
			if canFlush {
				flusher.Flush()
			}
			return nil
		}

		// Errors were already forwarded into the stream; nothing more
		// can be sent once headers are out.
		_ = pipeline.Run(c.Request.Context(), req.Query, req.ProjectContext, req.DeepAnalysis, emit)
	}
}
