package command

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	bus, err := NewBus(t.TempDir())
	require.NoError(t, err)
	return bus
}

func TestSubmitPollRoundTrip(t *testing.T) {
	bus := newTestBus(t)

	req, err := bus.Submit(CmdBuy, []string{"NVDA", "10", "@120.50"})
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)

	got, err := bus.Poll()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, CmdBuy, got.Command)
	assert.Equal(t, []string{"NVDA", "10", "@120.50"}, got.Args)

	// Consumed: the second poll sees nothing.
	got, err = bus.Poll()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSubmitRejectsUnknown(t *testing.T) {
	bus := newTestBus(t)
	_, err := bus.Submit("selfdestruct", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestRespondAndAwait(t *testing.T) {
	bus := newTestBus(t)
	req, err := bus.Submit(CmdStatus, nil)
	require.NoError(t, err)

	got, err := bus.Poll()
	require.NoError(t, err)
	require.NoError(t, bus.Respond(got, &Response{OK: true, Message: "defcon 5"}))

	resp, err := bus.AwaitResponse(req.ID, time.Second)
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "defcon 5", resp.Message)
	assert.Equal(t, req.ID, resp.ID)
}

func TestAwaitResponseTimesOut(t *testing.T) {
	bus := newTestBus(t)
	_, err := bus.AwaitResponse("never", 300*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no response")
}

func TestHistoryCapped(t *testing.T) {
	bus := newTestBus(t)
	for i := 0; i < historyLimit+20; i++ {
		_, err := bus.Submit(CmdDefcon, nil)
		require.NoError(t, err)
		got, err := bus.Poll()
		require.NoError(t, err)
		require.NoError(t, bus.Respond(got, &Response{OK: true, Message: fmt.Sprintf("reply %d", i)}))
	}

	entries, err := bus.History()
	require.NoError(t, err)
	require.Len(t, entries, historyLimit)
	assert.Equal(t, fmt.Sprintf("reply %d", historyLimit+19), entries[len(entries)-1].Response.Message)
}

func TestNoHalfWrittenFilesVisible(t *testing.T) {
	bus := newTestBus(t)
	_, err := bus.Submit(CmdHelp, nil)
	require.NoError(t, err)

	files, err := os.ReadDir(bus.dir)
	require.NoError(t, err)
	for _, f := range files {
		assert.NotContains(t, f.Name(), ".tmp-", "temp files must not linger")
	}
	assert.FileExists(t, filepath.Join(bus.dir, pendingFile))
}

func TestProcessorDispatch(t *testing.T) {
	bus := newTestBus(t)
	proc := NewProcessor(bus)
	proc.Register(CmdDefcon, func(context.Context, []string) Response {
		return Response{OK: true, Message: "defcon 3", Data: map[string]int{"level": 3}}
	})

	req, err := bus.Submit(CmdDefcon, nil)
	require.NoError(t, err)
	assert.Equal(t, CmdDefcon, proc.Drain(context.Background()))

	resp, err := bus.AwaitResponse(req.ID, time.Second)
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "defcon 3", resp.Message)
}

func TestProcessorUnregisteredCommand(t *testing.T) {
	bus := newTestBus(t)
	proc := NewProcessor(bus)

	req, err := bus.Submit(CmdHunt, nil)
	require.NoError(t, err)
	proc.Drain(context.Background())

	resp, err := bus.AwaitResponse(req.ID, time.Second)
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Message, "not available")
}

func TestProcessorQuietDirectory(t *testing.T) {
	proc := NewProcessor(newTestBus(t))
	assert.Empty(t, proc.Drain(context.Background()))
}

func TestRegisterUnknownPanics(t *testing.T) {
	proc := NewProcessor(newTestBus(t))
	assert.Panics(t, func() { proc.Register("bogus", nil) })
}
