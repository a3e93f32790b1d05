package ai

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"docchat-platform/internal/apperrors"
	"docchat-platform/internal/config"
	"docchat-platform/internal/telemetry"
)

// Embedder converts text to fixed-dimension vectors.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// EmbeddingService wraps the hosted Google embedding model. Requests are
// batched to bound request size; every returned vector is validated
// against the configured index dimension before it reaches a store.
type EmbeddingService struct {
	client    *genai.Client
	model     string
	dimension int
	batchSize int
	metrics   *telemetry.Metrics
}

func NewEmbeddingService(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics) (*EmbeddingService, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, err
	}
	return &EmbeddingService{
		client:    client,
		model:     cfg.GoogleEmbeddingsModel,
		dimension: cfg.VectorDimensions,
		batchSize: cfg.EmbedBatchSize,
		metrics:   metrics,
	}, nil
}

func (s *EmbeddingService) Dimension() int { return s.dimension }

// EmbedTexts embeds every input, preserving order and count. A wrong
// dimension or missing vector fails the whole batch.
func (s *EmbeddingService) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := s.client.EmbeddingModel(s.model)
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := em.NewBatch()
		for _, text := range texts[start:end] {
			batch.AddContent(genai.Text(text))
		}

		s.metrics.RecordEmbeddingRequest(ctx)
		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, &apperrors.EmbeddingError{Reason: "batch request failed", Err: err}
		}
		if len(resp.Embeddings) != end-start {
			return nil, &apperrors.EmbeddingError{
				Reason: fmt.Sprintf("provider returned %d embeddings for %d inputs", len(resp.Embeddings), end-start),
			}
		}
		for i, emb := range resp.Embeddings {
			if emb == nil {
				return nil, &apperrors.EmbeddingError{Reason: fmt.Sprintf("no embedding returned for input %d", start+i)}
			}
			if err := s.validate(emb.Values); err != nil {
				return nil, err
			}
			vectors = append(vectors, emb.Values)
		}
	}

	return vectors, nil
}

// EmbedQuery is the single-text convenience form for query-time embedding.
func (s *EmbeddingService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	em := s.client.EmbeddingModel(s.model)
	s.metrics.RecordEmbeddingRequest(ctx)
	resp, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, &apperrors.EmbeddingError{Reason: "request failed", Err: err}
	}
	if resp.Embedding == nil {
		return nil, &apperrors.EmbeddingError{Reason: "no embedding returned"}
	}
	if err := s.validate(resp.Embedding.Values); err != nil {
		return nil, err
	}
	return resp.Embedding.Values, nil
}

func (s *EmbeddingService) validate(vec []float32) error {
	if len(vec) != s.dimension {
		return &apperrors.EmbeddingError{
			Reason: fmt.Sprintf("vector dimension %d does not match configured dimension %d", len(vec), s.dimension),
		}
	}
	return nil
}

func (s *EmbeddingService) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
