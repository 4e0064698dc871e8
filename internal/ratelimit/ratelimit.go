// Package ratelimit throttles outbound provider calls. Each endpoint gets a
// token-bucket limiter plus an exponential backoff that kicks in after
// provider failures.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const maxBackoff = 300 * time.Second

// Limiter coordinates request pacing across named endpoints. Safe for
// concurrent use.
type Limiter struct {
	mu        sync.Mutex
	endpoints map[string]*endpointState
	clock     func() time.Time
}

type endpointState struct {
	limiter      *rate.Limiter
	minDelay     time.Duration
	lastRequest  time.Time
	failures     int
	backoffUntil time.Time
}

// Endpoint configures one named endpoint.
type Endpoint struct {
	Name     string
	RPM      int
	MinDelay time.Duration
}

// New builds a Limiter for the given endpoints.
func New(endpoints []Endpoint, clock func() time.Time) *Limiter {
	if clock == nil {
		clock = time.Now
	}
	l := &Limiter{endpoints: make(map[string]*endpointState, len(endpoints)), clock: clock}
	for _, ep := range endpoints {
		rpm := ep.RPM
		if rpm <= 0 {
			rpm = 60
		}
		l.endpoints[ep.Name] = &endpointState{
			limiter:  rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
			minDelay: ep.MinDelay,
		}
	}
	return l
}

// WaitIfNeeded blocks until a request to the endpoint is allowed: backoff
// window elapsed, min delay since the previous request satisfied, and a
// token available. Returns early with the context error on cancellation.
func (l *Limiter) WaitIfNeeded(ctx context.Context, endpoint string) error {
	st, err := l.state(endpoint)
	if err != nil {
		return err
	}

	for {
		l.mu.Lock()
		now := l.clock()
		var wait time.Duration
		if until := st.backoffUntil; until.After(now) {
			wait = until.Sub(now)
		}
		if st.minDelay > 0 && !st.lastRequest.IsZero() {
			if d := st.minDelay - now.Sub(st.lastRequest); d > wait {
				wait = d
			}
		}
		l.mu.Unlock()

		if wait <= 0 {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := st.limiter.Wait(ctx); err != nil {
		return err
	}
	return nil
}

// RecordRequest marks a successful request and clears the failure streak.
func (l *Limiter) RecordRequest(endpoint string) {
	st, err := l.state(endpoint)
	if err != nil {
		return
	}
	l.mu.Lock()
	st.lastRequest = l.clock()
	st.failures = 0
	st.backoffUntil = time.Time{}
	l.mu.Unlock()
}

// TriggerBackoff records a provider failure and extends the backoff window
// exponentially, capped at maxBackoff.
func (l *Limiter) TriggerBackoff(endpoint string) time.Duration {
	st, err := l.state(endpoint)
	if err != nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	st.failures++
	backoff := time.Duration(math.Pow(2, float64(st.failures))) * time.Second
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	st.backoffUntil = l.clock().Add(backoff)
	log.Warn().Str("endpoint", endpoint).Int("failures", st.failures).
		Dur("backoff", backoff).Msg("endpoint backoff triggered")
	return backoff
}

// Backoff reports the remaining backoff window for the endpoint.
func (l *Limiter) Backoff(endpoint string) time.Duration {
	st, err := l.state(endpoint)
	if err != nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if remaining := st.backoffUntil.Sub(l.clock()); remaining > 0 {
		return remaining
	}
	return 0
}

func (l *Limiter) state(endpoint string) (*endpointState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.endpoints[endpoint]
	if !ok {
		return nil, fmt.Errorf("ratelimit: unknown endpoint %q", endpoint)
	}
	return st, nil
}
