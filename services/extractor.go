package services

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"docchat-platform/internal/apperrors"
)

// ContentFormat tags how extracted text should be interpreted downstream.
type ContentFormat string

const (
	FormatPlain      ContentFormat = "plain"
	FormatTranscript ContentFormat = "transcript"
)

// Extractor converts uploaded file bytes into plain text. Anything more
// exotic than PDF or text belongs to an upstream extraction service.
type Extractor struct{}

func NewExtractor() *Extractor { return &Extractor{} }

// ExtractText returns the extracted text and its content format.
// Unsupported MIME types are a validation error, reported before any
// store interaction.
func (e *Extractor) ExtractText(data []byte, mimeType, fileName string) (string, ContentFormat, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	mt := strings.ToLower(mimeType)
	if idx := strings.Index(mt, ";"); idx >= 0 {
		mt = strings.TrimSpace(mt[:idx])
	}

	switch {
	case mt == "application/pdf" || ext == ".pdf":
		text, err := extractPDFText(data)
		if err != nil {
			return "", FormatPlain, err
		}
		return text, FormatPlain, nil

	case mt == "application/json" || ext == ".json":
		// Transcript-style payloads are flattened by the chunker.
		return string(data), FormatTranscript, nil

	case strings.HasPrefix(mt, "text/") || ext == ".txt" || ext == ".md":
		return string(data), FormatPlain, nil

	default:
		return "", FormatPlain, &apperrors.ValidationError{
			Field:  "file",
			Reason: fmt.Sprintf("unsupported file type %q for %s", mimeType, fileName),
		}
	}
}

func extractPDFText(data []byte) (string, error) {
	if len(data) < 5 || string(data[:4]) != "%PDF" {
		return "", &apperrors.ValidationError{Field: "file", Reason: "file does not appear to be a valid PDF"}
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract PDF text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("failed to read PDF text: %w", err)
	}
	return buf.String(), nil
}
