package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docchat-platform/services"
	"docchat-platform/utils"
)

// HandleReconcile triggers a consistency pass between the vector store
// and the blob store on demand.
func HandleReconcile(reconciler *services.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := reconciler.Reconcile(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Reconciliation failed", gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
