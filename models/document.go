package models

import (
	"time"
)

// DocumentType tags what kind of record a Document is.
type DocumentType string

const (
	DocTypeSource         DocumentType = "source"
	DocTypeProjectDetails DocumentType = "project_details"
	DocTypeConversation   DocumentType = "conversation"
	DocTypeAIMemory       DocumentType = "ai_memory"
)

// DocumentMetadata is the common record shared by every document variant.
// Score is only populated on query results and is never persisted.
type DocumentMetadata struct {
	FileName   string       `json:"file_name" bson:"file_name"`
	FileType   string       `json:"file_type" bson:"file_type"`
	Type       DocumentType `json:"type" bson:"type"`
	UploadedAt time.Time    `json:"uploaded_at" bson:"uploaded_at"`
	FileURL    string       `json:"file_url,omitempty" bson:"file_url,omitempty"`
	HasBlob    bool         `json:"has_blob" bson:"has_blob"`
	PartIndex  int          `json:"part_index,omitempty" bson:"part_index,omitempty"`
	TotalParts int          `json:"total_parts,omitempty" bson:"total_parts,omitempty"`
	Score      float64      `json:"score,omitempty" bson:"-"`
}

// NewSourceMetadata builds metadata for an uploaded source file.
func NewSourceMetadata(fileName, fileType string) DocumentMetadata {
	return DocumentMetadata{
		FileName:   fileName,
		FileType:   fileType,
		Type:       DocTypeSource,
		UploadedAt: time.Now().UTC(),
	}
}

// NewProjectDetailsMetadata builds metadata for stored project context.
func NewProjectDetailsMetadata(name string) DocumentMetadata {
	return DocumentMetadata{
		FileName:   name,
		FileType:   "text/plain",
		Type:       DocTypeProjectDetails,
		UploadedAt: time.Now().UTC(),
	}
}

// NewConversationMetadata builds metadata for a persisted conversation turn.
func NewConversationMetadata(name string) DocumentMetadata {
	return DocumentMetadata{
		FileName:   name,
		FileType:   "text/plain",
		Type:       DocTypeConversation,
		UploadedAt: time.Now().UTC(),
	}
}

// NewAIMemoryMetadata builds metadata for assistant memory records.
func NewAIMemoryMetadata(name string) DocumentMetadata {
	return DocumentMetadata{
		FileName:   name,
		FileType:   "text/plain",
		Type:       DocTypeAIMemory,
		UploadedAt: time.Now().UTC(),
	}
}

// Field returns the metadata value for a reserved key name, used by
// equality filters. Unknown keys return "".
func (m DocumentMetadata) Field(key string) string {
	switch key {
	case "fileName":
		return m.FileName
	case "fileType":
		return m.FileType
	case "type":
		return string(m.Type)
	case "fileUrl":
		return m.FileURL
	default:
		return ""
	}
}

// Document is a stored, embeddable unit. A large source is persisted as
// several Documents, one per chunk, linked by FileName and PartIndex.
type Document struct {
	ID        string           `json:"id" bson:"_id"`
	Content   string           `json:"content" bson:"content"`
	Embedding []float32        `json:"embedding,omitempty" bson:"embedding,omitempty"`
	Metadata  DocumentMetadata `json:"metadata" bson:"metadata"`
}

// SourceInfo is the listing view of a stored source document.
type SourceInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	URL        string    `json:"url,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}
