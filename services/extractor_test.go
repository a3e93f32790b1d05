package services

import (
	"errors"
	"testing"

	"docchat-platform/internal/apperrors"
)

func TestExtractTextPlain(t *testing.T) {
	e := NewExtractor()
	text, format, err := e.ExtractText([]byte("plain words"), "text/plain; charset=utf-8", "notes.txt")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if text != "plain words" || format != FormatPlain {
		t.Fatalf("got %q %q", text, format)
	}
}

func TestExtractTextJSONIsTranscript(t *testing.T) {
	e := NewExtractor()
	raw := `[{"content":"spoken line"}]`
	text, format, err := e.ExtractText([]byte(raw), "application/json", "meeting.json")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if text != raw || format != FormatTranscript {
		t.Fatalf("got %q %q", text, format)
	}
}

func TestExtractTextUnsupportedType(t *testing.T) {
	e := NewExtractor()
	_, _, err := e.ExtractText([]byte{0x00, 0x01}, "application/zip", "archive.zip")
	var validationErr *apperrors.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestExtractTextRejectsFakePDF(t *testing.T) {
	e := NewExtractor()
	_, _, err := e.ExtractText([]byte("not a pdf at all"), "application/pdf", "fake.pdf")
	var validationErr *apperrors.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError for bad PDF header, got %v", err)
	}
}
