package llm

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// sdkTransport is the API-key fallback when the CLI path is unavailable.
type sdkTransport struct {
	apiKey string
	tiers  map[string]TierSettings

	mu     sync.Mutex
	client *genai.Client
}

// TierSettings mirror the per-tier generation knobs.
type TierSettings struct {
	Temperature     float64
	MaxOutputTokens int
	ThinkingBudget  int // 0 = none, -1 = dynamic
}

func newSDKTransport(apiKey string, tiers map[string]TierSettings) *sdkTransport {
	return &sdkTransport{apiKey: apiKey, tiers: tiers}
}

func (t *sdkTransport) Available() bool {
	return t.apiKey != ""
}

func (t *sdkTransport) ensureClient(ctx context.Context) (*genai.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		return t.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  t.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	t.client = client
	return client, nil
}

// Generate runs one prompt through the SDK with the tier's generation
// settings applied.
func (t *sdkTransport) Generate(ctx context.Context, modelID, tier, prompt string) (string, int, int, error) {
	client, err := t.ensureClient(ctx)
	if err != nil {
		return "", 0, 0, err
	}

	cfg := &genai.GenerateContentConfig{}
	if settings, ok := t.tiers[tier]; ok {
		cfg.Temperature = genai.Ptr(float32(settings.Temperature))
		if settings.MaxOutputTokens > 0 {
			cfg.MaxOutputTokens = int32(settings.MaxOutputTokens)
		}
		cfg.ThinkingConfig = &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(int32(settings.ThinkingBudget)),
		}
	}

	resp, err := client.Models.GenerateContent(ctx, modelID, genai.Text(prompt), cfg)
	if err != nil {
		return "", 0, 0, fmt.Errorf("genai generate (%s): %w", modelID, err)
	}

	tokensIn, tokensOut := 0, 0
	if resp.UsageMetadata != nil {
		tokensIn = int(resp.UsageMetadata.PromptTokenCount)
		tokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return resp.Text(), tokensIn, tokensOut, nil
}
