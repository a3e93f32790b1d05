package models

// ChatRequest is the body of POST /chat/query.
type ChatRequest struct {
	Query          string `json:"query" binding:"required"`
	ProjectContext string `json:"project_context"`
	DeepAnalysis   bool   `json:"deep_analysis"`
}

// UploadFileResult reports the outcome of one file in an upload batch.
type UploadFileResult struct {
	FileName   string `json:"file_name"`
	Status     string `json:"status"` // "ingested", "queued" or "failed"
	DocumentID string `json:"document_id,omitempty"`
	Chunks     int    `json:"chunks,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ReconcileResponse is returned by POST /admin/reconcile.
type ReconcileResponse struct {
	PrunedFromVectorStore int      `json:"pruned_from_vector_store"`
	PrunedFromBlobStore   int      `json:"pruned_from_blob_store"`
	Inconsistencies       []string `json:"inconsistencies"`
}
