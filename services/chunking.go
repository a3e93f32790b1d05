package services

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ChunkingService splits raw document text into size-bounded,
// paragraph-aware chunks ready for embedding. Split is a stateless pure
// function; one service instance is shared across goroutines.
type ChunkingService struct {
	maxChunkChars  int
	minChunkLength int
	spaceRegex     *regexp.Regexp
	newlineRegex   *regexp.Regexp
	paragraphSplit *regexp.Regexp
}

// NewChunkingService creates a chunker. maxChunkTokens is converted to a
// character budget with the shared 4 chars/token heuristic.
func NewChunkingService(maxChunkTokens, minChunkLength int) *ChunkingService {
	return &ChunkingService{
		maxChunkChars:  maxChunkTokens * 4,
		minChunkLength: minChunkLength,
		spaceRegex:     regexp.MustCompile(`[ \t]+`),
		newlineRegex:   regexp.MustCompile(`\n{3,}`),
		paragraphSplit: regexp.MustCompile(`\n\n`),
	}
}

// MaxChunkChars returns the per-chunk character budget.
func (cs *ChunkingService) MaxChunkChars() int { return cs.maxChunkChars }

// MinChunkLength returns the floor below which a chunk is noise.
func (cs *ChunkingService) MinChunkLength() int { return cs.minChunkLength }

// transcriptRecord is one line of a transcript-style JSON payload.
type transcriptRecord struct {
	Content string `json:"content"`
}

// FlattenTranscript concatenates the non-empty content fields of a JSON
// transcript array. The second return reports whether the input was in
// that format; if not, the input is returned unchanged.
func (cs *ChunkingService) FlattenTranscript(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "[") {
		return raw, false
	}
	var records []transcriptRecord
	if err := json.Unmarshal([]byte(trimmed), &records); err != nil {
		return raw, false
	}
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		content := strings.TrimSpace(rec.Content)
		if content == "" || strings.Contains(strings.ToLower(content), "[inaudible]") {
			continue
		}
		lines = append(lines, content)
	}
	return strings.Join(lines, "\n"), true
}

// Normalize collapses CRLF to LF, runs of 3+ newlines to 2, runs of
// spaces/tabs to one space, and trims the result.
func (cs *ChunkingService) Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = cs.spaceRegex.ReplaceAllString(text, " ")
	text = cs.newlineRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Split turns raw text into chunk strings. Inputs normalizing below the
// minimum length yield an empty slice, which callers treat as "no
// content". A single paragraph longer than the budget is returned whole;
// size-aware callers split such content with EqualParts.
func (cs *ChunkingService) Split(rawText string) []string {
	flattened, _ := cs.FlattenTranscript(rawText)
	text := cs.Normalize(flattened)

	if len(text) < cs.minChunkLength {
		return nil
	}
	if len(text) <= cs.maxChunkChars {
		return []string{text}
	}

	paragraphs := cs.paragraphSplit.Split(text, -1)

	var chunks []string
	current := new(strings.Builder)

	flush := func() {
		chunk := strings.TrimSpace(current.String())
		if len(chunk) >= cs.minChunkLength {
			chunks = append(chunks, chunk)
		}
		current.Reset()
	}

	for _, paragraph := range paragraphs {
		paragraph = strings.TrimSpace(paragraph)
		if len(paragraph) == 0 {
			continue
		}

		// Separator counts against the budget when the chunk is non-empty.
		projected := current.Len() + len(paragraph)
		if current.Len() > 0 {
			projected += 2
		}
		if projected > cs.maxChunkChars && current.Len() > 0 {
			flush()
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(paragraph)
	}

	if current.Len() > 0 {
		flush()
	}

	return chunks
}

// EqualParts splits text into the smallest number of near-equal slices
// that each fit under maxLen bytes. Cuts land on rune boundaries, so
// every part is valid UTF-8. Used by size-aware callers for content a
// single paragraph of which exceeds the budget.
func EqualParts(text string, maxLen int) []string {
	if maxLen <= 0 || len(text) <= maxLen {
		return []string{text}
	}
	n := (len(text) + maxLen - 1) / maxLen
	size := (len(text) + n - 1) / n
	parts := make([]string, 0, n)
	for start := 0; start < len(text); {
		end := start + size
		if end >= len(text) {
			end = len(text)
		} else {
			for end > start && !utf8.RuneStart(text[end]) {
				end--
			}
			if end == start {
				_, w := utf8.DecodeRuneInString(text[start:])
				end = start + w
			}
		}
		parts = append(parts, text[start:end])
		start = end
	}
	return parts
}
