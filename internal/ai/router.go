package ai

import (
	"context"
	"errors"

	"docchat-platform/internal/apperrors"
)

// ModelChoice identifies which provider and model handle a batch.
type ModelChoice struct {
	Provider string
	Model    string
}

// EstimateTokens approximates token count as ceil(len/4). This fixed
// heuristic is shared by the chunker, the batcher and the router;
// swapping in a real tokenizer would shift batch boundaries.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// ModelRouter picks a model from an estimated token count. Estimates at
// or above the threshold route to the large-context provider.
type ModelRouter struct {
	threshold     int
	defaultChoice ModelChoice
	largeChoice   ModelChoice
}

func NewModelRouter(threshold int, defaultChoice, largeChoice ModelChoice) *ModelRouter {
	return &ModelRouter{
		threshold:     threshold,
		defaultChoice: defaultChoice,
		largeChoice:   largeChoice,
	}
}

func (r *ModelRouter) ChooseModel(estimatedTokens int) ModelChoice {
	if estimatedTokens >= r.threshold {
		return r.largeChoice
	}
	return r.defaultChoice
}

// CompletionRouter dispatches a streamed completion to whichever
// provider the ModelRouter selects for the content size.
type CompletionRouter struct {
	router    *ModelRouter
	providers map[string]ChatStreamer
}

func NewCompletionRouter(router *ModelRouter, providers map[string]ChatStreamer) *CompletionRouter {
	return &CompletionRouter{router: router, providers: providers}
}

// Stream routes by estimated size, then streams the completion. The
// chosen model is returned so callers can report it.
func (cr *CompletionRouter) Stream(ctx context.Context, estimatedTokens int, prompt string, onDelta func(string) error) (ModelChoice, error) {
	choice := cr.router.ChooseModel(estimatedTokens)
	provider, ok := cr.providers[choice.Provider]
	if !ok {
		return choice, &apperrors.ModelCallError{
			Provider: choice.Provider,
			Model:    choice.Model,
			Err:      errNoProvider,
		}
	}
	return choice, provider.StreamCompletion(ctx, choice.Model, prompt, onDelta)
}

var errNoProvider = errors.New("no client registered for provider")
