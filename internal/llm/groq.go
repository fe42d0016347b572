package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mindmark/mindmark-server/internal/model"
)

// GroqClient calls a Groq/OpenAI-compatible chat completions API.
type GroqClient struct {
	client *resty.Client
}

// NewGroqClient creates a client for baseURL (e.g. https://api.groq.com/openai/v1).
func NewGroqClient(baseURL, apiKey string) *GroqClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(apiKey).
		SetTimeout(2 * time.Minute)
	return &GroqClient{client: c}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Tools    []Tool    `json:"tools,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (g *GroqClient) Complete(ctx context.Context, modelID string, msgs []Message, tools []Tool) (Message, error) {
	reqBody := chatRequest{Model: modelID, Messages: msgs, Tools: tools}

	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(&reqBody).
		Post("/chat/completions")
	if err != nil {
		return Message{}, fmt.Errorf("completion request: %v: %w", err, model.ErrUnavailable)
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return Message{}, fmt.Errorf("completion status %d: %w", resp.StatusCode(), model.ErrUnavailable)
	}
	if resp.StatusCode() != http.StatusOK {
		return Message{}, fmt.Errorf("completion status %d: %s", resp.StatusCode(), resp.String())
	}

	var out chatResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return Message{}, fmt.Errorf("decode completion response: %w", err)
	}
	if out.Error != nil {
		return Message{}, fmt.Errorf("completion error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		// The model may decline to answer; callers treat this as empty content.
		return Message{Role: "assistant"}, nil
	}
	return out.Choices[0].Message, nil
}

// HealthPing verifies the API endpoint is reachable.
func (g *GroqClient) HealthPing(ctx context.Context) error {
	resp, err := g.client.R().SetContext(ctx).Get("/models")
	if err != nil {
		return err
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return fmt.Errorf("model API status %d", resp.StatusCode())
	}
	return nil
}
