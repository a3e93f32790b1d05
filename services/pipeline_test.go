package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"docchat-platform/internal/ai"
	"docchat-platform/models"
)

type stubRetriever struct {
	docs []*models.Document
	err  error
}

func (s *stubRetriever) SearchSimilar(ctx context.Context, query string, filter map[string]string, topK int) ([]*models.Document, error) {
	return s.docs, s.err
}

// scriptedCompleter records every prompt and streams a fixed output.
type scriptedCompleter struct {
	output  string
	prompts []string
	err     error
}

func (s *scriptedCompleter) Stream(ctx context.Context, estimatedTokens int, prompt string, onDelta func(string) error) (ai.ModelChoice, error) {
	s.prompts = append(s.prompts, prompt)
	choice := ai.ModelChoice{Provider: "stub", Model: "stub-model"}
	if s.err != nil {
		return choice, s.err
	}
	// Deliver in small deltas to exercise the formatter's carryover.
	for _, r := range s.output {
		if err := onDelta(string(r)); err != nil {
			return choice, err
		}
	}
	return choice, nil
}

func sourceDoc(name, content string, score float64, uploaded time.Time) *models.Document {
	meta := models.NewSourceMetadata(name, "text/plain")
	meta.Score = score
	meta.UploadedAt = uploaded
	return &models.Document{ID: name, Content: content, Metadata: meta}
}

func runPipeline(t *testing.T, retriever *stubRetriever, completer *scriptedCompleter, query string) ([]string, error) {
	t.Helper()
	p := NewAnalysisPipeline(retriever, completer, NewChunkingService(25, 10), PipelineOptions{
		TopK:            12,
		BatchCharBudget: 100,
		MaxBatches:      4,
	}, nil, nil)

	var fragments []string
	err := p.Run(context.Background(), query, "", false, func(fragment string) error {
		fragments = append(fragments, fragment)
		return nil
	})
	return fragments, err
}

func TestPipelineNoSourcesTerminates(t *testing.T) {
	completer := &scriptedCompleter{output: "unused"}
	fragments, err := runPipeline(t, &stubRetriever{}, completer, "what happened?")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(completer.prompts) != 0 {
		t.Fatalf("no-sources path must not call the model, got %d calls", len(completer.prompts))
	}
	if fragments[len(fragments)-1] != "[DONE]" {
		t.Fatalf("stream must end with [DONE], got %q", fragments[len(fragments)-1])
	}
	joined := strings.Join(fragments, "")
	if !strings.Contains(joined, "No uploaded sources") {
		t.Fatalf("missing terminal message: %q", joined)
	}
}

func TestPipelineStageOrdering(t *testing.T) {
	now := time.Now()
	retriever := &stubRetriever{docs: []*models.Document{
		sourceDoc("a.txt", "short alpha content here", 0.9, now),
		sourceDoc("b.txt", "short beta content here", 0.5, now),
	}}
	completer := &scriptedCompleter{output: "Analysis done. All good."}

	fragments, err := runPipeline(t, retriever, completer, "what happened?")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	joined := strings.Join(fragments, "")
	batchMarker := strings.Index(joined, "[STAGE: Analyzing batch 1 of 1]")
	synthMarker := strings.Index(joined, "[STAGE: Synthesizing final summary]")
	done := strings.Index(joined, "[DONE]")
	if batchMarker < 0 || synthMarker < 0 || done < 0 {
		t.Fatalf("missing markers in %q", joined)
	}
	if !(batchMarker < synthMarker && synthMarker < done) {
		t.Fatal("markers out of order")
	}
	if done != len(joined)-len("[DONE]") {
		t.Fatal("[DONE] must be the final fragment")
	}

	// One batch call plus one synthesis call.
	if len(completer.prompts) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(completer.prompts))
	}
	if !strings.Contains(completer.prompts[1], "Analysis done.") {
		t.Fatal("synthesis prompt must carry the accumulated batch analysis")
	}
}

func TestPipelineFailureEmitsErrorWithoutDone(t *testing.T) {
	retriever := &stubRetriever{docs: []*models.Document{
		sourceDoc("a.txt", "short alpha content here", 0.9, time.Now()),
	}}
	wantErr := errors.New("model unavailable")
	completer := &scriptedCompleter{err: wantErr}

	fragments, err := runPipeline(t, retriever, completer, "what happened?")
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected the model error back, got %v", err)
	}

	joined := strings.Join(fragments, "")
	if !strings.Contains(joined, "[ERROR]") {
		t.Fatalf("missing error marker in %q", joined)
	}
	if strings.Contains(joined, "[DONE]") {
		t.Fatal("[DONE] must not follow a failure")
	}
}

func TestPipelineSplitsOversizedSource(t *testing.T) {
	big := strings.Repeat("x", 250) // budget is 100
	retriever := &stubRetriever{docs: []*models.Document{
		sourceDoc("big.txt", big, 0.9, time.Now()),
	}}
	completer := &scriptedCompleter{output: "ok"}

	_, err := runPipeline(t, retriever, completer, "what happened?")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// 3 part batches plus synthesis.
	if len(completer.prompts) != 4 {
		t.Fatalf("expected 4 model calls, got %d", len(completer.prompts))
	}
	if !strings.Contains(completer.prompts[0], "(part 1 of 3)") {
		t.Fatalf("first part batch missing part tag:\n%s", completer.prompts[0])
	}
}

func TestPipelineOverviewSortsChronologically(t *testing.T) {
	old := time.Now().Add(-2 * time.Hour)
	recent := time.Now()
	retriever := &stubRetriever{docs: []*models.Document{
		sourceDoc("new.txt", "newer but more relevant", 0.9, recent),
		sourceDoc("old.txt", "older and less relevant", 0.2, old),
	}}
	completer := &scriptedCompleter{output: "ok"}

	_, err := runPipeline(t, retriever, completer, "give me an overview of everything")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	prompt := completer.prompts[0]
	if strings.Index(prompt, "old.txt") > strings.Index(prompt, "new.txt") {
		t.Fatal("overview queries must read sources in chronological order")
	}
}

func TestPipelineDropsEmptySources(t *testing.T) {
	retriever := &stubRetriever{docs: []*models.Document{
		sourceDoc("empty.txt", "   ", 0.9, time.Now()),
		sourceDoc("transcript.json", `[{"content":"[inaudible]"}]`, 0.8, time.Now()),
	}}
	completer := &scriptedCompleter{output: "unused"}

	fragments, err := runPipeline(t, retriever, completer, "what happened?")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(completer.prompts) != 0 {
		t.Fatal("all-empty source sets must take the no-sources path")
	}
	if fragments[len(fragments)-1] != "[DONE]" {
		t.Fatal("stream must still end with [DONE]")
	}
}

func TestStreamFormatterAcrossDeltas(t *testing.T) {
	f := &streamFormatter{}
	var out strings.Builder
	out.WriteString(f.Write("Hello. Wor"))
	out.WriteString(f.Write("ld: yes"))
	out.WriteString(f.Flush())

	want := "Hello.\n\nWorld:\n\nyes"
	if out.String() != want {
		t.Fatalf("want %q, got %q", want, out.String())
	}
}

func TestStreamFormatterCollapsesNewlines(t *testing.T) {
	f := &streamFormatter{}
	got := f.Write("alpha\n\n\n\n\nbeta and more text") + f.Flush()
	if strings.Contains(got, "\n\n\n") {
		t.Fatalf("newline run not collapsed: %q", got)
	}
}

func TestStreamFormatterBulletBreaks(t *testing.T) {
	f := &streamFormatter{}
	got := f.Write("points are - first - second and done") + f.Flush()
	if !strings.Contains(got, "\n- first") {
		t.Fatalf("missing bullet break: %q", got)
	}
}
