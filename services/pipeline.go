package services

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"docchat-platform/internal/ai"
	"docchat-platform/internal/telemetry"
	"docchat-platform/models"
)

// EmitFunc receives each output fragment in order. Returning an error
// aborts the pipeline (used for client disconnects).
type EmitFunc func(fragment string) error

// SourceRetriever is the read side of the document store the pipeline
// depends on.
type SourceRetriever interface {
	SearchSimilar(ctx context.Context, query string, filter map[string]string, topK int) ([]*models.Document, error)
}

// CompletionStreamer routes a prompt by estimated size and streams the
// model's output.
type CompletionStreamer interface {
	Stream(ctx context.Context, estimatedTokens int, prompt string, onDelta func(string) error) (ai.ModelChoice, error)
}

// PipelineOptions tune batching. Zero values fall back to defaults.
type PipelineOptions struct {
	TopK            int // sources retrieved per query
	BatchCharBudget int // character ceiling per batch (~tokens*4)
	MaxBatches      int // base batch cap; doubled for overview queries
}

// AnalysisPipeline answers a query in stages: retrieve sources, partition
// them into token-bounded batches, stream one analysis per batch, then
// stream a final synthesis across all batch analyses. Batches run
// strictly in order; stage markers are positional signals to the
// consumer, so no parallelism inside one run.
type AnalysisPipeline struct {
	retriever SourceRetriever
	completer CompletionStreamer
	chunker   *ChunkingService
	opts      PipelineOptions
	metrics   *telemetry.Metrics
	log       *slog.Logger
}

func NewAnalysisPipeline(retriever SourceRetriever, completer CompletionStreamer, chunker *ChunkingService, opts PipelineOptions, metrics *telemetry.Metrics, log *slog.Logger) *AnalysisPipeline {
	if opts.TopK <= 0 {
		opts.TopK = 12
	}
	if opts.BatchCharBudget <= 0 {
		opts.BatchCharBudget = 120000
	}
	if opts.MaxBatches <= 0 {
		opts.MaxBatches = 4
	}
	if log == nil {
		log = slog.Default()
	}
	return &AnalysisPipeline{
		retriever: retriever,
		completer: completer,
		chunker:   chunker,
		opts:      opts,
		metrics:   metrics,
		log:       log,
	}
}

var overviewKeywordRegex = regexp.MustCompile(`(?i)\b(summary|summarize|overview|all|everything)\b`)

// batch is one token-bounded group of sources for a single model call.
type batch struct {
	sources []*models.Document
	chars   int
}

// Run executes the full pipeline, pushing every fragment through emit.
// deep widens the batch cap the same way overview queries do. Success
// ends with a [DONE] fragment; any model failure forwards an [ERROR]
// fragment and returns the error without [DONE].
func (p *AnalysisPipeline) Run(ctx context.Context, query, projectContext string, deep bool, emit EmitFunc) error {
	ctx, span := otel.Tracer("docchat-platform/pipeline").Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.Int("query.length", len(query))))
	defer span.End()

	if err := emit("[STAGE: Retrieving sources]"); err != nil {
		return err
	}

	sources, err := p.retriever.SearchSimilar(ctx, query, map[string]string{"type": string(models.DocTypeSource)}, p.opts.TopK)
	if err != nil {
		return p.fail(emit, err)
	}

	overview := overviewKeywordRegex.MatchString(query)
	sources = p.prepareSources(sources, overview)
	if len(sources) == 0 {
		if err := emit("No uploaded sources were found for this project. Upload documents first, then ask again."); err != nil {
			return err
		}
		return emit("[DONE]")
	}

	batches := p.buildBatches(sources, overview || deep)
	span.SetAttributes(attribute.Int("pipeline.batches", len(batches)))
	p.metrics.RecordPipelineBatches(ctx, len(batches))
	p.log.Info("pipeline batching complete",
		"sources", len(sources), "batches", len(batches), "overview", overview)

	analyses := make([]string, 0, len(batches))
	for i, b := range batches {
		if err := emit(fmt.Sprintf("[STAGE: Analyzing batch %d of %d]", i+1, len(batches))); err != nil {
			return err
		}
		if i > 0 {
			if err := emit("\n\n---\n\n"); err != nil {
				return err
			}
		}

		prompt := buildBatchPrompt(query, projectContext, b, i+1, len(batches))
		text, err := p.streamCompletion(ctx, prompt, emit)
		if err != nil {
			return p.fail(emit, err)
		}
		analyses = append(analyses, text)
	}

	if err := emit("[STAGE: Synthesizing final summary]"); err != nil {
		return err
	}
	if err := emit("\n\n---\n\n"); err != nil {
		return err
	}
	prompt := buildSynthesisPrompt(query, projectContext, analyses)
	if _, err := p.streamCompletion(ctx, prompt, emit); err != nil {
		return p.fail(emit, err)
	}

	return emit("[DONE]")
}

// streamCompletion runs one routed model call, reformats the token
// stream on the fly and returns the accumulated formatted text.
func (p *AnalysisPipeline) streamCompletion(ctx context.Context, prompt string, emit EmitFunc) (string, error) {
	formatter := &streamFormatter{}
	var accumulated strings.Builder

	forward := func(fragment string) error {
		if fragment == "" {
			return nil
		}
		accumulated.WriteString(fragment)
		return emit(fragment)
	}

	choice, err := p.completer.Stream(ctx, ai.EstimateTokens(prompt), prompt, func(delta string) error {
		return forward(formatter.Write(delta))
	})
	if err != nil {
		return "", err
	}
	if err := forward(formatter.Flush()); err != nil {
		return "", err
	}

	p.metrics.RecordTokens(ctx, choice.Provider, choice.Model,
		ai.EstimateTokens(prompt)+ai.EstimateTokens(accumulated.String()))
	p.log.Debug("batch completion finished",
		"provider", choice.Provider, "model", choice.Model,
		"promptTokens", ai.EstimateTokens(prompt))
	return accumulated.String(), nil
}

func (p *AnalysisPipeline) fail(emit EmitFunc, err error) error {
	p.log.Error("pipeline failed", "error", err)
	// Best effort: the client may already be gone.
	_ = emit(fmt.Sprintf("[ERROR] %v", err))
	return err
}

// prepareSources drops empty sources and applies the sorting policy:
// chronological for overview queries, score-descending otherwise.
func (p *AnalysisPipeline) prepareSources(sources []*models.Document, overview bool) []*models.Document {
	kept := make([]*models.Document, 0, len(sources))
	for _, src := range sources {
		content := src.Content
		if flat, ok := p.chunker.FlattenTranscript(content); ok {
			content = flat
			cp := *src
			cp.Content = flat
			src = &cp
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		kept = append(kept, src)
	}

	if overview {
		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].Metadata.UploadedAt.Before(kept[j].Metadata.UploadedAt)
		})
	} else {
		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].Metadata.Score > kept[j].Metadata.Score
		})
	}
	return kept
}

// buildBatches greedily packs whole sources under the character budget.
// A single source larger than the budget is split into equal parts, each
// its own batch. The batch count is capped; excess sources are dropped.
func (p *AnalysisPipeline) buildBatches(sources []*models.Document, expanded bool) []batch {
	maxBatches := p.opts.MaxBatches
	if expanded {
		maxBatches *= 2
	}

	var batches []batch
	current := batch{}
	flush := func() {
		if len(current.sources) > 0 {
			batches = append(batches, current)
			current = batch{}
		}
	}

	for _, src := range sources {
		if len(batches) >= maxBatches {
			break
		}

		if len(src.Content) > p.opts.BatchCharBudget {
			flush()
			parts := EqualParts(src.Content, p.opts.BatchCharBudget)
			for idx, part := range parts {
				if len(batches) >= maxBatches {
					break
				}
				cp := *src
				cp.Content = part
				cp.Metadata.PartIndex = idx + 1
				cp.Metadata.TotalParts = len(parts)
				batches = append(batches, batch{sources: []*models.Document{&cp}, chars: len(part)})
			}
			continue
		}

		if current.chars+len(src.Content) > p.opts.BatchCharBudget {
			flush()
			if len(batches) >= maxBatches {
				break
			}
		}
		current.sources = append(current.sources, src)
		current.chars += len(src.Content)
	}
	if len(batches) < maxBatches {
		flush()
	}
	return batches
}

func buildBatchPrompt(query, projectContext string, b batch, index, total int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are analyzing uploaded project sources to answer a question. This is batch %d of %d.\n\n", index, total)
	if projectContext != "" {
		fmt.Fprintf(&sb, "Project context:\n%s\n\n", projectContext)
	}
	fmt.Fprintf(&sb, "Question:\n%s\n\nSources in this batch:\n\n", query)
	for _, src := range b.sources {
		fmt.Fprintf(&sb, "=== %s", src.Metadata.FileName)
		if src.Metadata.TotalParts > 0 {
			fmt.Fprintf(&sb, " (part %d of %d)", src.Metadata.PartIndex, src.Metadata.TotalParts)
		}
		sb.WriteString(" ===\n")
		sb.WriteString(src.Content)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Analyze only the sources above. Preserve names, numbers and technical terms. Answer the question as far as these sources allow:")
	return sb.String()
}

func buildSynthesisPrompt(query, projectContext string, analyses []string) string {
	var sb strings.Builder
	sb.WriteString("You produced the following per-batch analyses of a project's sources. Synthesize them into one final, coherent answer.\n\n")
	if projectContext != "" {
		fmt.Fprintf(&sb, "Project context:\n%s\n\n", projectContext)
	}
	fmt.Fprintf(&sb, "Question:\n%s\n\n", query)
	for i, analysis := range analyses {
		fmt.Fprintf(&sb, "--- Analysis %d ---\n%s\n\n", i+1, analysis)
	}
	sb.WriteString("Resolve contradictions between analyses explicitly and do not repeat yourself. Final answer:")
	return sb.String()
}

var (
	sentenceBreakRegex = regexp.MustCompile(`([.!?:]) +`)
	bulletBreakRegex   = regexp.MustCompile(` +([-*\x{2022}] )`)
	newlineRunRegex    = regexp.MustCompile(`\n{3,}`)
)

// streamFormatter applies the deterministic reformatting pass to a
// token stream: paragraph breaks after sentence-ending punctuation and
// colons, a line break before bullet markers, and newline runs
// collapsed to doubles. A small raw tail is held back between writes so
// patterns straddling delta boundaries still format.
type streamFormatter struct {
	pending string
}

const formatterHoldback = 4

func (f *streamFormatter) Write(delta string) string {
	f.pending += delta
	if len(f.pending) <= formatterHoldback {
		return ""
	}
	cut := len(f.pending) - formatterHoldback
	for cut > 0 && isBoundaryByte(f.pending[cut-1]) {
		cut--
	}
	if cut == 0 {
		return ""
	}
	out := formatFragment(f.pending[:cut])
	f.pending = f.pending[cut:]
	return out
}

// Flush formats and returns whatever is still held back.
func (f *streamFormatter) Flush() string {
	out := formatFragment(f.pending)
	f.pending = ""
	return out
}

func formatFragment(s string) string {
	s = sentenceBreakRegex.ReplaceAllString(s, "$1\n\n")
	s = bulletBreakRegex.ReplaceAllString(s, "\n$1")
	return newlineRunRegex.ReplaceAllString(s, "\n\n")
}

// isBoundaryByte reports whether a byte may sit inside one of the
// formatting patterns, so cutting after it is unsafe. Bytes above 0x7f
// are treated as unsafe to avoid splitting multibyte runes.
func isBoundaryByte(b byte) bool {
	switch b {
	case '.', '!', '?', ':', ' ', '\n', '-', '*':
		return true
	}
	return b >= 0x80
}
