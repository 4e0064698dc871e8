package llm

import (
	"context"
	"fmt"

	"github.com/warroom-labs/warroom/internal/httpx"
)

const grokEndpointURL = "https://api.x.ai/v1/chat/completions"

// GrokClient calls the x.ai OpenAI-compatible chat endpoint. Used as a
// second opinion on high-stakes reads and as the discovery hound.
type GrokClient struct {
	http   *httpx.Client
	apiKey string
	model  string
}

// NewGrokClient builds the client. A nil client or empty key disables Grok
// features gracefully.
func NewGrokClient(http *httpx.Client, apiKey, model string) *GrokClient {
	if model == "" {
		model = "grok-3-mini"
	}
	return &GrokClient{http: http, apiKey: apiKey, model: model}
}

// Available reports whether Grok calls can be made.
func (g *GrokClient) Available() bool {
	return g != nil && g.apiKey != ""
}

type grokRequest struct {
	Model    string        `json:"model"`
	Messages []grokMessage `json:"messages"`
}

type grokMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type grokResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete sends one system+user exchange and returns the reply text.
func (g *GrokClient) Complete(ctx context.Context, system, user string) (string, int, int, error) {
	if !g.Available() {
		return "", 0, 0, fmt.Errorf("grok: no api key configured")
	}
	req := grokRequest{
		Model: g.model,
		Messages: []grokMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	var resp grokResponse
	err := g.http.PostJSON(ctx, "grok", grokEndpointURL,
		map[string]string{"Authorization": "Bearer " + g.apiKey}, req, &resp)
	if err != nil {
		return "", 0, 0, fmt.Errorf("grok complete: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", 0, 0, fmt.Errorf("grok: empty choices")
	}
	return resp.Choices[0].Message.Content,
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens, nil
}
