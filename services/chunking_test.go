package services

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitRespectsBounds(t *testing.T) {
	cs := NewChunkingService(25, 10) // 100-char budget

	paragraphs := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		paragraphs = append(paragraphs, strings.Repeat("word ", 8)) // 40 chars
	}
	text := strings.Join(paragraphs, "\n\n")

	chunks := cs.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > cs.MaxChunkChars() {
			t.Errorf("chunk %d is %d chars, budget is %d", i, len(chunk), cs.MaxChunkChars())
		}
		if len(chunk) < cs.MinChunkLength() {
			t.Errorf("chunk %d is %d chars, floor is %d", i, len(chunk), cs.MinChunkLength())
		}
	}
}

func TestSplitPreservesAllContent(t *testing.T) {
	cs := NewChunkingService(25, 10)
	text := "First paragraph here with content.\n\nSecond paragraph also with content.\n\nThird one closes it out properly."

	chunks := cs.Split(text)
	joined := strings.Join(chunks, "\n\n")
	if joined != cs.Normalize(text) {
		t.Fatalf("content lost or reordered:\nwant %q\ngot  %q", cs.Normalize(text), joined)
	}
}

func TestSplitShortInputYieldsNothing(t *testing.T) {
	cs := NewChunkingService(500, 20)
	if got := cs.Split("tiny"); got != nil {
		t.Fatalf("expected nil for sub-minimum input, got %v", got)
	}
	if got := cs.Split("   \n\n  "); got != nil {
		t.Fatalf("expected nil for whitespace input, got %v", got)
	}
}

func TestSplitSingleChunkFastPath(t *testing.T) {
	cs := NewChunkingService(500, 20)
	text := "A single modest paragraph that fits comfortably."
	chunks := cs.Split(text)
	if len(chunks) != 1 || chunks[0] != text {
		t.Fatalf("expected [%q], got %v", text, chunks)
	}
}

func TestSplitOversizedParagraphReturnedWhole(t *testing.T) {
	cs := NewChunkingService(25, 10)
	big := strings.Repeat("x", 300)
	chunks := cs.Split(big)
	if len(chunks) != 1 || chunks[0] != big {
		t.Fatalf("oversized single paragraph should come back whole, got %d chunks", len(chunks))
	}
}

func TestNormalize(t *testing.T) {
	cs := NewChunkingService(500, 20)
	in := "a\r\nb\r\nc\n\n\n\nd\te   f  "
	want := "a\nb\nc\n\nd e f"
	if got := cs.Normalize(in); got != want {
		t.Fatalf("want %q, got %q", want, got)
	}
}

func TestFlattenTranscript(t *testing.T) {
	cs := NewChunkingService(500, 20)
	raw := `[{"content":"hello there"},{"content":"  "},{"content":"[inaudible]"},{"content":"goodbye"}]`

	flat, ok := cs.FlattenTranscript(raw)
	if !ok {
		t.Fatal("transcript format not recognized")
	}
	if flat != "hello there\ngoodbye" {
		t.Fatalf("unexpected flattened text: %q", flat)
	}
}

func TestFlattenTranscriptPassthrough(t *testing.T) {
	cs := NewChunkingService(500, 20)
	raw := "plain prose, not a transcript"
	flat, ok := cs.FlattenTranscript(raw)
	if ok || flat != raw {
		t.Fatalf("plain text must pass through unchanged, got ok=%v %q", ok, flat)
	}

	malformed := `[{"content": "unterminated`
	flat, ok = cs.FlattenTranscript(malformed)
	if ok || flat != malformed {
		t.Fatalf("malformed JSON must pass through unchanged, got ok=%v", ok)
	}
}

func TestEqualParts(t *testing.T) {
	text := strings.Repeat("a", 95)
	parts := EqualParts(text, 40)
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(parts))
	}
	var total int
	for _, p := range parts {
		if len(p) > 40 {
			t.Errorf("part of %d chars exceeds max 40", len(p))
		}
		total += len(p)
	}
	if total != len(text) {
		t.Fatalf("parts cover %d chars, want %d", total, len(text))
	}

	if parts := EqualParts("short", 40); len(parts) != 1 || parts[0] != "short" {
		t.Fatalf("short input should be one part, got %v", parts)
	}
}

func TestEqualPartsKeepsRunesIntact(t *testing.T) {
	text := strings.Repeat("héllo wörld ", 10) // multibyte runes throughout
	parts := EqualParts(text, 25)
	if len(parts) < 2 {
		t.Fatalf("expected multiple parts, got %d", len(parts))
	}
	var rejoined strings.Builder
	for i, p := range parts {
		if !utf8.ValidString(p) {
			t.Errorf("part %d is not valid UTF-8: %q", i, p)
		}
		if len(p) > 25 {
			t.Errorf("part %d of %d bytes exceeds max 25", i, len(p))
		}
		rejoined.WriteString(p)
	}
	if rejoined.String() != text {
		t.Fatal("parts do not reassemble into the input")
	}
}
