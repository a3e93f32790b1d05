package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docchat-platform/internal/apperrors"
)

// OpenRouterClient speaks the OpenAI-compatible streaming completion API.
// It serves batches too large for the default model's context window.
type OpenRouterClient struct {
	apiKey     string
	baseURL    string
	appName    string
	httpClient *http.Client
}

func NewOpenRouterClient(apiKey, baseURL string) *OpenRouterClient {
	return &OpenRouterClient{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		appName: "docchat-platform",
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

// Configured reports whether an API key is present.
func (c *OpenRouterClient) Configured() bool { return c.apiKey != "" }

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// StreamCompletion issues a streaming chat completion and forwards each
// delta fragment through onDelta.
func (c *OpenRouterClient) StreamCompletion(ctx context.Context, model, prompt string, onDelta func(string) error) error {
	if !c.Configured() {
		return &apperrors.ModelCallError{
			Provider: "openrouter",
			Model:    model,
			Err:      fmt.Errorf("OPENROUTER_API_KEY not configured"),
		}
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   true,
	})
	if err != nil {
		return &apperrors.ModelCallError{Provider: "openrouter", Model: model, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return &apperrors.ModelCallError{Provider: "openrouter", Model: model, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Title", c.appName)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &apperrors.ModelCallError{Provider: "openrouter", Model: model, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &apperrors.ModelCallError{
			Provider: "openrouter",
			Model:    model,
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))),
		}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}
		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := onDelta(choice.Delta.Content); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return &apperrors.ModelCallError{Provider: "openrouter", Model: model, Err: err}
	}
	return nil
}
