package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnknownEndpoint(t *testing.T) {
	l := New(nil, nil)
	err := l.WaitIfNeeded(context.Background(), "nope")
	assert.Error(t, err)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	l := New([]Endpoint{{Name: "fred", RPM: 30}}, func() time.Time { return now })

	assert.Equal(t, 2*time.Second, l.TriggerBackoff("fred"))
	assert.Equal(t, 4*time.Second, l.TriggerBackoff("fred"))
	assert.Equal(t, 8*time.Second, l.TriggerBackoff("fred"))

	for i := 0; i < 10; i++ {
		l.TriggerBackoff("fred")
	}
	assert.Equal(t, maxBackoff, l.TriggerBackoff("fred"))
}

func TestSuccessClearsBackoff(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	l := New([]Endpoint{{Name: "rss", RPM: 30}}, func() time.Time { return now })

	l.TriggerBackoff("rss")
	assert.Positive(t, l.Backoff("rss"))

	l.RecordRequest("rss")
	assert.Zero(t, l.Backoff("rss"))
}

func TestBackoffExpires(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	l := New([]Endpoint{{Name: "quotes", RPM: 60}}, func() time.Time { return now })

	l.TriggerBackoff("quotes")
	require.Positive(t, l.Backoff("quotes"))

	now = now.Add(3 * time.Second)
	assert.Zero(t, l.Backoff("quotes"))
}

func TestWaitRespectsContext(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	l := New([]Endpoint{{Name: "edgar", RPM: 10}}, func() time.Time { return now })

	// Long backoff, immediate cancel.
	for i := 0; i < 8; i++ {
		l.TriggerBackoff("edgar")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.WaitIfNeeded(ctx, "edgar")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitFastPath(t *testing.T) {
	l := New([]Endpoint{{Name: "rss", RPM: 600}}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.WaitIfNeeded(ctx, "rss"))
	l.RecordRequest("rss")
	require.NoError(t, l.WaitIfNeeded(ctx, "rss"))
}
