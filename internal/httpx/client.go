// Package httpx is the shared outbound HTTP client: one timeout policy,
// a per-endpoint circuit breaker, and JSON decoding helpers.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

const (
	defaultTimeout = 20 * time.Second
	maxBodyBytes   = 8 << 20
)

// Client issues requests through per-endpoint circuit breakers. A tripped
// breaker fails fast instead of stacking timeouts during a provider outage.
type Client struct {
	http      *http.Client
	userAgent string

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// New builds a Client. An empty userAgent gets a sane default; some
// providers (EDGAR in particular) reject anonymous agents.
func New(userAgent string) *Client {
	if userAgent == "" {
		userAgent = "warroom/1.0"
	}
	return &Client{
		http:      &http.Client{Timeout: defaultTimeout},
		userAgent: userAgent,
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (c *Client) breaker(endpoint string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[endpoint]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    endpoint,
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("endpoint", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
	c.breakers[endpoint] = cb
	return cb
}

// Get fetches url through the endpoint's breaker and returns the body.
// Non-2xx statuses count as breaker failures.
func (c *Client) Get(ctx context.Context, endpoint, url string, headers map[string]string) ([]byte, error) {
	body, err := c.breaker(endpoint).Execute(func() (any, error) {
		return c.do(ctx, http.MethodGet, url, headers, nil)
	})
	if err != nil {
		return nil, err
	}
	return body.([]byte), nil
}

// GetJSON fetches url and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, endpoint, url string, headers map[string]string, out any) error {
	body, err := c.Get(ctx, endpoint, url, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

// PostJSON sends a JSON payload and decodes the JSON response into out.
func (c *Client) PostJSON(ctx context.Context, endpoint, url string, headers map[string]string, payload, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", endpoint, err)
	}
	if headers == nil {
		headers = map[string]string{}
	}
	headers["Content-Type"] = "application/json"

	body, err := c.breaker(endpoint).Execute(func() (any, error) {
		return c.do(ctx, http.MethodPost, url, headers, encoded)
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body.([]byte), out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, headers map[string]string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, URL: url, Body: truncate(body, 256)}
	}
	return body, nil
}

// StatusError carries the non-2xx status for callers that branch on it
// (429 triggers backoff, 5xx trips the breaker faster).
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d from %s: %s", e.Code, e.URL, e.Body)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
