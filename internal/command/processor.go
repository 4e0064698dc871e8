package command

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Handler executes one command and returns the outcome. Validation failures
// come back as ok=false responses, not errors; an error means the handler
// itself broke.
type Handler func(ctx context.Context, args []string) Response

// Processor dispatches drained requests to registered handlers.
type Processor struct {
	bus      *Bus
	handlers map[string]Handler
}

// NewProcessor builds an empty dispatch table over the bus.
func NewProcessor(bus *Bus) *Processor {
	return &Processor{bus: bus, handlers: make(map[string]Handler)}
}

// Register installs the handler for a command name. Registering an unknown
// name is a programming error.
func (p *Processor) Register(name string, h Handler) {
	if !Known(name) {
		panic(fmt.Sprintf("command: register unknown command %q", name))
	}
	p.handlers[name] = h
}

// Drain processes at most one pending request and reports its name, or ""
// when the directory was quiet.
func (p *Processor) Drain(ctx context.Context) string {
	req, err := p.bus.Poll()
	if err != nil {
		log.Warn().Err(err).Msg("poll command failed")
		return ""
	}
	if req == nil {
		return ""
	}

	resp := p.dispatch(ctx, req)
	resp.Time = time.Now()
	if err := p.bus.Respond(req, &resp); err != nil {
		log.Warn().Err(err).Str("command", req.Command).Msg("write command response failed")
	}
	log.Info().Str("command", req.Command).Strs("args", req.Args).
		Bool("ok", resp.OK).Msg("command processed")
	return req.Command
}

func (p *Processor) dispatch(ctx context.Context, req *Request) Response {
	if !Known(req.Command) {
		return Response{OK: false, Message: fmt.Sprintf("unknown command %q (try help)", req.Command)}
	}
	h, ok := p.handlers[req.Command]
	if !ok {
		return Response{OK: false, Message: fmt.Sprintf("command %q not available", req.Command)}
	}
	return h(ctx, req.Args)
}
