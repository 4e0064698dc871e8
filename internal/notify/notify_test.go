package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warroom-labs/warroom/internal/config"
	"github.com/warroom-labs/warroom/internal/httpx"
	"github.com/warroom-labs/warroom/internal/models"
)

func newTestSink(t *testing.T, events map[string]bool) (*Sink, *[]payload) {
	t.Helper()
	var received []payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var p payload
		require.NoError(t, json.Unmarshal(body, &p))
		received = append(received, p)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	sink := New(httpx.New(""), config.ChannelConfig{
		WebhookURL: srv.URL,
		Username:   "warroom",
		IconEmoji:  ":chart:",
		Events:     events,
	})
	return sink, &received
}

func TestSendDeliversPayload(t *testing.T) {
	sink, received := newTestSink(t, nil)
	sink.Send(context.Background(), EventDefconChange, "level change")

	require.Len(t, *received, 1)
	assert.Equal(t, "level change", (*received)[0].Text)
	assert.Equal(t, "warroom", (*received)[0].Username)
	assert.Equal(t, ":chart:", (*received)[0].Icon)
}

func TestDisabledEventDropped(t *testing.T) {
	sink, received := newTestSink(t, map[string]bool{EventCycleSummary: false})
	sink.Send(context.Background(), EventCycleSummary, "routine")
	assert.Empty(t, *received)
}

func TestUnknownEventDefaultsEnabled(t *testing.T) {
	sink, received := newTestSink(t, map[string]bool{EventCycleSummary: false})
	sink.Send(context.Background(), "brand_new_event", "hello")
	assert.Len(t, *received, 1)
}

func TestNoURLDropsSilently(t *testing.T) {
	sink := New(httpx.New(""), config.ChannelConfig{})
	assert.False(t, sink.Enabled(EventTradeEntry))
	sink.Send(context.Background(), EventTradeEntry, "never sent")
}

func TestLongTextTruncated(t *testing.T) {
	sink, received := newTestSink(t, nil)
	long := make([]byte, maxTextBytes+500)
	for i := range long {
		long[i] = 'x'
	}
	sink.Send(context.Background(), EventNewsUpdate, string(long))

	require.Len(t, *received, 1)
	assert.LessOrEqual(t, len((*received)[0].Text), maxTextBytes+len("…"))
}

func TestServerFailureSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	sink := New(httpx.New(""), config.ChannelConfig{WebhookURL: srv.URL})
	sink.Send(context.Background(), EventTradeExit, "must not panic or error")
}

func TestTradeExitFormatting(t *testing.T) {
	sink, received := newTestSink(t, nil)
	sink.TradeExit(context.Background(), &models.TradeRecord{
		Ticker: "NVDA", Shares: 50, ExitPrice: 96,
		RealizedPnL: -200, RealizedPnLPct: -4, HoldingHours: 2,
	}, "stop_loss")

	require.Len(t, *received, 1)
	assert.Contains(t, (*received)[0].Text, "SELL NVDA")
	assert.Contains(t, (*received)[0].Text, "stop_loss")
	assert.Contains(t, (*received)[0].Text, ":small_red_triangle_down:")
}
