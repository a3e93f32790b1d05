package ai

import (
	"context"
	"log"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"docchat-platform/internal/apperrors"
)

// ChatStreamer is a streaming chat-completion call against one provider.
// onDelta receives output fragments as they arrive; returning an error
// from onDelta stops the stream.
type ChatStreamer interface {
	StreamCompletion(ctx context.Context, model, prompt string, onDelta func(string) error) error
}

// GeminiClient is the default chat-completion provider, guarded by a
// circuit breaker and a tier-appropriate rate limiter.
type GeminiClient struct {
	client      *genai.Client
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
	tier        string
}

type RateLimits struct {
	RPM int // Requests per minute
	TPM int // Tokens per minute
	RPD int // Requests per day
}

func NewGeminiClient(apiKey string, tier string) (*GeminiClient, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	limits := getRateLimits(tier)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	// RPM limit with some buffer
	rateLimiter := rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), limits.RPM/10)

	return &GeminiClient{
		client:      client,
		breaker:     breaker,
		rateLimiter: rateLimiter,
		tier:        tier,
	}, nil
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "free":
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	case "tier1":
		return RateLimits{RPM: 1000, TPM: 1000000, RPD: 10000}
	case "tier2":
		return RateLimits{RPM: 2000, TPM: 4000000, RPD: 50000}
	default:
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	}
}

// StreamCompletion streams incremental output for the prompt through
// onDelta. Fragments are forwarded as they arrive, never buffered whole.
func (gc *GeminiClient) StreamCompletion(ctx context.Context, model, prompt string, onDelta func(string) error) error {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.stream_completion")
	defer span.End()

	span.SetAttributes(
		attribute.String("gemini.model", model),
		attribute.Int("gemini.estimated_tokens", EstimateTokens(prompt)),
	)

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return &apperrors.ModelCallError{Provider: "gemini", Model: model, Err: err}
	}

	_, err := gc.breaker.Execute(func() (interface{}, error) {
		m := gc.client.GenerativeModel(model)
		m.SetTemperature(0.7)

		iter := m.GenerateContentStream(ctx, genai.Text(prompt))
		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			if err := onDelta(responseText(resp)); err != nil {
				return nil, err
			}
		}
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return &apperrors.ModelCallError{Provider: "gemini", Model: model, Err: err}
	}

	span.SetAttributes(attribute.Bool("gemini.success", true))
	return nil
}

// responseText flattens the text parts of a streamed response chunk.
func responseText(resp *genai.GenerateContentResponse) string {
	total := ""
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				total += string(text)
			}
		}
	}
	return total
}

// Close the client
func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
