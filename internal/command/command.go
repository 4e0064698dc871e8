// Package command is the file-drop IPC bus between the operator CLI and the
// running orchestrator. Requests land in pending_command.json, responses in
// command_response.json; both are written atomically via write-then-rename.
package command

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	pendingFile  = "pending_command.json"
	responseFile = "command_response.json"
	historyFile  = "command_history.json"

	historyLimit = 200
)

// Command names, a closed set. Anything else is rejected at dispatch.
const (
	CmdYes       = "yes"
	CmdNo        = "no"
	CmdHold      = "hold"
	CmdStart     = "start"
	CmdStop      = "stop"
	CmdEstop     = "estop"
	CmdUpdate    = "update"
	CmdStatus    = "status"
	CmdPortfolio = "portfolio"
	CmdDefcon    = "defcon"
	CmdTrades    = "trades"
	CmdBroker    = "broker"
	CmdHelp      = "help"
	CmdMode      = "mode"
	CmdInterval  = "interval"
	CmdBuy       = "buy"
	CmdSell      = "sell"
	CmdBriefing  = "briefing"
	CmdResearch  = "research"
	CmdHunt      = "hunt"
)

// Known reports whether name is in the command set.
func Known(name string) bool {
	switch name {
	case CmdYes, CmdNo, CmdHold, CmdStart, CmdStop, CmdEstop, CmdUpdate,
		CmdStatus, CmdPortfolio, CmdDefcon, CmdTrades, CmdBroker, CmdHelp,
		CmdMode, CmdInterval, CmdBuy, CmdSell, CmdBriefing, CmdResearch, CmdHunt:
		return true
	}
	return false
}

// Request is one operator command.
type Request struct {
	ID        string    `json:"id"`
	Command   string    `json:"command"`
	Args      []string  `json:"args,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Response is the handler result written back for the caller.
type Response struct {
	ID      string    `json:"id"`
	OK      bool      `json:"ok"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
	Time    time.Time `json:"time"`
}

// historyEntry is one line of the rolling command log.
type historyEntry struct {
	Request  Request  `json:"request"`
	Response Response `json:"response"`
}

// Bus reads and writes the IPC files in one directory.
type Bus struct {
	dir string
}

// NewBus ensures the command directory exists.
func NewBus(dir string) (*Bus, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create command dir: %w", err)
	}
	return &Bus{dir: dir}, nil
}

// Submit drops a request for the orchestrator. Used by the CLI side.
func (b *Bus) Submit(cmd string, args []string) (*Request, error) {
	if !Known(cmd) {
		return nil, fmt.Errorf("unknown command %q (try help)", cmd)
	}
	req := &Request{
		ID:        uuid.NewString(),
		Command:   cmd,
		Args:      args,
		Timestamp: time.Now(),
	}
	if err := writeAtomic(filepath.Join(b.dir, pendingFile), req); err != nil {
		return nil, err
	}
	return req, nil
}

// Poll returns the pending request, or nil when none is waiting. The pending
// file is consumed so each request dispatches once.
func (b *Bus) Poll() (*Request, error) {
	path := filepath.Join(b.dir, pendingFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pending command: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("consume pending command: %w", err)
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parse pending command: %w", err)
	}
	return &req, nil
}

// Respond writes the response file and appends to the rolling history.
func (b *Bus) Respond(req *Request, resp *Response) error {
	resp.ID = req.ID
	if resp.Time.IsZero() {
		resp.Time = time.Now()
	}
	if err := writeAtomic(filepath.Join(b.dir, responseFile), resp); err != nil {
		return err
	}
	b.appendHistory(historyEntry{Request: *req, Response: *resp})
	return nil
}

// AwaitResponse polls for the response to a submitted request. Used by the
// CLI side.
func (b *Bus) AwaitResponse(id string, timeout time.Duration) (*Response, error) {
	deadline := time.Now().Add(timeout)
	path := filepath.Join(b.dir, responseFile)
	for {
		data, err := os.ReadFile(path)
		if err == nil {
			var resp Response
			if json.Unmarshal(data, &resp) == nil && resp.ID == id {
				return &resp, nil
			}
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("no response after %s (is the orchestrator running?)", timeout)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// History returns the rolling command log, newest last.
func (b *Bus) History() ([]historyEntry, error) {
	data, err := os.ReadFile(filepath.Join(b.dir, historyFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read command history: %w", err)
	}
	var entries []historyEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse command history: %w", err)
	}
	return entries, nil
}

func (b *Bus) appendHistory(entry historyEntry) {
	entries, err := b.History()
	if err != nil {
		entries = nil
	}
	entries = append(entries, entry)
	if len(entries) > historyLimit {
		entries = entries[len(entries)-historyLimit:]
	}
	_ = writeAtomic(filepath.Join(b.dir, historyFile), entries)
}

// writeAtomic marshals v and renames a temp file into place, so readers
// never see a half-written document.
func writeAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("temp file for %s: %w", filepath.Base(path), err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
