package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter    metric.Int64Counter
	RequestDuration   metric.Float64Histogram
	TokensUsed        metric.Int64Counter
	IngestDuration    metric.Float64Histogram
	PipelineBatches   metric.Int64Counter
	ReconcilePruned   metric.Int64Counter
	EmbeddingRequests metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("docchat-platform")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tokensUsed, err := meter.Int64Counter(
		"model.tokens.used",
		metric.WithDescription("Total language model tokens used"),
	)
	if err != nil {
		return nil, err
	}

	ingestDuration, err := meter.Float64Histogram(
		"ingest.duration",
		metric.WithDescription("Document ingestion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	pipelineBatches, err := meter.Int64Counter(
		"pipeline.batches.total",
		metric.WithDescription("Total analysis batches processed"),
	)
	if err != nil {
		return nil, err
	}

	reconcilePruned, err := meter.Int64Counter(
		"reconcile.pruned.total",
		metric.WithDescription("Total orphaned records pruned by reconciliation"),
	)
	if err != nil {
		return nil, err
	}

	embeddingRequests, err := meter.Int64Counter(
		"embedding.requests.total",
		metric.WithDescription("Total embedding batch requests"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:    requestCounter,
		RequestDuration:   requestDuration,
		TokensUsed:        tokensUsed,
		IngestDuration:    ingestDuration,
		PipelineBatches:   pipelineBatches,
		ReconcilePruned:   reconcilePruned,
		EmbeddingRequests: embeddingRequests,
	}, nil
}

// RecordRequest records a completed HTTP request
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", status),
	)
	m.RequestCounter.Add(context.Background(), 1, attrs)
	m.RequestDuration.Record(context.Background(), duration, attrs)
}

// RecordTokens records an estimated token count sent to a model
func (m *Metrics) RecordTokens(ctx context.Context, provider, model string, tokens int) {
	if m == nil {
		return
	}
	m.TokensUsed.Add(ctx, int64(tokens), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
	))
}

// RecordIngestDuration records how long one document ingestion took
func (m *Metrics) RecordIngestDuration(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.IngestDuration.Record(ctx, seconds)
}

// RecordPipelineBatches records the batch count of one pipeline run
func (m *Metrics) RecordPipelineBatches(ctx context.Context, batches int) {
	if m == nil {
		return
	}
	m.PipelineBatches.Add(ctx, int64(batches))
}

// RecordReconcilePruned records records removed by one reconcile pass
func (m *Metrics) RecordReconcilePruned(ctx context.Context, pruned int) {
	if m == nil {
		return
	}
	m.ReconcilePruned.Add(ctx, int64(pruned))
}

// RecordEmbeddingRequest records one embedding API call
func (m *Metrics) RecordEmbeddingRequest(ctx context.Context) {
	if m == nil {
		return
	}
	m.EmbeddingRequests.Add(ctx, 1)
}
