package chat

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/momentics/wsrelay/api"
	"github.com/momentics/wsrelay/control"
	core "github.com/momentics/wsrelay/core/protocol"
	"github.com/momentics/wsrelay/internal/history"
	"github.com/momentics/wsrelay/protocol"
	"github.com/momentics/wsrelay/server"
)

// Recorder stores relayed messages; *history.Store implements it.
type Recorder interface {
	Record(ctx context.Context, m history.Message) (int64, error)
}

// Backlog lists the newest recorded messages, oldest first; *history.Store
// implements it.
type Backlog interface {
	Recent(ctx context.Context, limit int) ([]history.Message, error)
}

// RelayConfig wires a Relay's collaborators. Every field is optional.
type RelayConfig struct {
	Logger  *log.Logger
	Metrics *control.MetricsRegistry
	History Recorder
	// RecordTimeout bounds one history access; one second when zero.
	RecordTimeout time.Duration
	// Replay is how many recorded messages a newly joined client receives.
	// It needs a History that also implements Backlog; zero disables it.
	Replay int
}

// Relay forwards each chat message to every connection except its sender.
type Relay struct {
	cfg RelayConfig
}

// NewRelay creates a relay.
func NewRelay(cfg RelayConfig) *Relay {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[relay] ", log.LstdFlags)
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = time.Second
	}
	return &Relay{cfg: cfg}
}

// Dispatch is a server.Dispatcher. Malformed payloads are logged, counted
// and dropped; the sender stays connected.
func (r *Relay) Dispatch(rt *server.Runtime, from api.ConnID, f core.Frame) {
	name, msg, err := DecodePayload(f.Payload)
	if err != nil {
		r.cfg.Metrics.Inc(control.MetricMalformedMessages)
		r.cfg.Logger.Printf("client %d: %v", from, api.ApplicationError("relay", err))
		return
	}
	r.cfg.Logger.Printf("[%s] %s", name, msg)

	if r.cfg.History != nil {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.RecordTimeout)
		_, err := r.cfg.History.Record(ctx, history.Message{ConnID: uint64(from), Name: name, Text: msg})
		cancel()
		if err != nil {
			r.cfg.Logger.Printf("history: %v", err)
		}
	}

	if _, err := rt.BroadcastExcept(from, []byte(FormatLine(name, msg))); err != nil {
		r.cfg.Logger.Printf("relay from client %d: %v", from, err)
	}
}

// Greet is a server open hook: it sends the newest recorded messages to c
// only, in the same "name: message" form the relay forwards.
func (r *Relay) Greet(_ *server.Runtime, c *protocol.Conn) {
	backlog, ok := r.cfg.History.(Backlog)
	if r.cfg.Replay <= 0 || !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.RecordTimeout)
	msgs, err := backlog.Recent(ctx, r.cfg.Replay)
	cancel()
	if err != nil {
		r.cfg.Logger.Printf("history replay for client %d: %v", c.ID(), err)
		return
	}
	for _, m := range msgs {
		if err := c.WriteText([]byte(FormatLine(m.Name, m.Text))); err != nil {
			r.cfg.Logger.Printf("history replay for client %d: %v", c.ID(), err)
			return
		}
	}
	r.cfg.Metrics.Add(control.MetricFramesOut, int64(len(msgs)))
}

// Print is a server.Dispatcher for the client role: it writes each text
// message from the server to the logger's output as one line.
func Print(out *log.Logger) server.Dispatcher {
	return func(_ *server.Runtime, _ api.ConnID, f core.Frame) {
		out.Print(string(f.Payload))
	}
}
