package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// cliTransport runs prompts through the locally installed gemini CLI so the
// orchestrator rides the operator's OAuth subscription instead of burning
// API-key quota. Preferred whenever the binary and cached credentials are
// both present.
type cliTransport struct {
	binary  string
	timeout time.Duration
}

func newCLITransport(binary string, timeout time.Duration) *cliTransport {
	if binary == "" {
		binary = "gemini"
	}
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &cliTransport{binary: binary, timeout: timeout}
}

// Available reports whether the CLI path is usable: binary on PATH and an
// OAuth refresh token cached under ~/.gemini.
func (t *cliTransport) Available() bool {
	if _, err := exec.LookPath(t.binary); err != nil {
		return false
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return false
	}
	data, err := os.ReadFile(filepath.Join(home, ".gemini", "oauth_creds.json"))
	if err != nil {
		return false
	}
	var creds struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return false
	}
	return creds.RefreshToken != ""
}

type cliResponse struct {
	Response string `json:"response"`
	Stats    struct {
		Models map[string]struct {
			Tokens struct {
				Prompt     int `json:"prompt"`
				Candidates int `json:"candidates"`
			} `json:"tokens"`
		} `json:"models"`
	} `json:"stats"`
}

// Generate runs one prompt through the CLI and returns the raw response
// text plus token counts.
func (t *cliTransport) Generate(ctx context.Context, modelID, prompt string) (string, int, int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.binary,
		"-p", prompt,
		"--model", modelID,
		"--output-format", "json",
	)
	// Blank the API key so the CLI authenticates via OAuth, not the key.
	cmd.Env = append(os.Environ(), "GEMINI_API_KEY=")

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", 0, 0, fmt.Errorf("gemini cli timed out after %s: %w", t.timeout, ctx.Err())
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", 0, 0, fmt.Errorf("gemini cli failed: %s: %w", truncateStr(string(exitErr.Stderr), 300), err)
		}
		return "", 0, 0, fmt.Errorf("gemini cli failed: %w", err)
	}

	var resp cliResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		// Older CLI builds print bare text despite --output-format json.
		log.Debug().Err(err).Msg("gemini cli emitted non-json envelope, using raw output")
		return string(out), 0, 0, nil
	}
	tokensIn, tokensOut := 0, 0
	for _, m := range resp.Stats.Models {
		tokensIn += m.Tokens.Prompt
		tokensOut += m.Tokens.Candidates
	}
	return resp.Response, tokensIn, tokensOut, nil
}

func truncateStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
