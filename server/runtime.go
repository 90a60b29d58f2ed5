// File: server/runtime.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime multiplexes a listener, the admitted connections and a command
// mailbox on one goroutine.

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync/atomic"

	"github.com/momentics/wsrelay/api"
	"github.com/momentics/wsrelay/control"
	core "github.com/momentics/wsrelay/core/protocol"
	"github.com/momentics/wsrelay/internal/concurrency"
	"github.com/momentics/wsrelay/protocol"
	"github.com/momentics/wsrelay/reactor"
)

// ErrStopped is returned by Post once the runtime has shut down.
var ErrStopped = errors.New("runtime stopped")

// listenerToken tags the listener in reactor events; connection IDs start
// at 1 so they never collide with it.
const listenerToken uintptr = 0

const defaultEventBatch = 128

// Dispatcher handles one inbound, non-empty data frame. It runs on the loop
// goroutine and may call Broadcast, BroadcastExcept and Admit.
type Dispatcher func(rt *Runtime, from api.ConnID, f core.Frame)

// Runtime is the relay event loop.
type Runtime struct {
	listener      api.Listener
	rx            reactor.EventReactor
	ownsReactor   bool
	dispatch      Dispatcher
	logger        *log.Logger
	metrics       *control.MetricsRegistry
	accept        protocol.AcceptOptions
	stopWhenEmpty bool
	onOpen        func(rt *Runtime, c *protocol.Conn)
	onClose       func(rt *Runtime, c *protocol.Conn)

	reg     *Registry
	mailbox *concurrency.Mailbox[Command]
	nextID  atomic.Uint64
	running atomic.Bool
	done    chan struct{}

	// Owned by the loop goroutine.
	events    []reactor.Event
	frames    []core.Frame
	cmds      []Command
	ready     []api.ConnID
	doomed    []api.ConnID
	doomedSet map[api.ConnID]struct{}
	fds       map[api.ConnID]uintptr
	inPass    bool
	stopping  bool
}

// New builds a runtime. Without WithReactor a platform reactor is created
// and closed when Run returns.
func New(opts ...Option) (*Runtime, error) {
	rt := &Runtime{
		reg:       NewRegistry(),
		done:      make(chan struct{}),
		events:    make([]reactor.Event, defaultEventBatch),
		doomedSet: make(map[api.ConnID]struct{}),
		fds:       make(map[api.ConnID]uintptr),
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.logger == nil {
		rt.logger = log.New(os.Stderr, "[server] ", log.LstdFlags)
	}
	if rt.rx == nil {
		rx, err := reactor.NewReactor()
		if err != nil {
			return nil, fmt.Errorf("create reactor: %w", err)
		}
		rt.rx, rt.ownsReactor = rx, true
	}
	rt.mailbox = concurrency.NewMailbox[Command](rt.rx.Wake)
	return rt, nil
}

// NextID allocates a connection identity.
func (rt *Runtime) NextID() api.ConnID { return api.ConnID(rt.nextID.Add(1)) }

// Registry exposes the live connection set for read-only inspection.
func (rt *Runtime) Registry() *Registry { return rt.reg }

// Len returns the number of open connections.
func (rt *Runtime) Len() int { return rt.reg.Len() }

// Done is closed when Run has returned.
func (rt *Runtime) Done() <-chan struct{} { return rt.done }

// Post hands cmd to the loop goroutine. Safe from any goroutine.
func (rt *Runtime) Post(cmd Command) error {
	if err := rt.mailbox.Post(cmd); err != nil {
		if errors.Is(err, concurrency.ErrMailboxClosed) {
			return ErrStopped
		}
		return err
	}
	return nil
}

// Shutdown asks the loop to close every connection and return.
func (rt *Runtime) Shutdown() error { return rt.Post(Command{Kind: CmdShutdown}) }

// RegisterProbes publishes runtime state on dp.
func (rt *Runtime) RegisterProbes(dp *control.DebugProbes) {
	dp.RegisterProbe("runtime.connections", func() any { return rt.reg.Len() })
	dp.RegisterProbe("runtime.mailbox", func() any { return rt.mailbox.Len() })
}

// Run serves until shutdown, cancellation of ctx or a reactor failure. Only
// a reactor failure produces an error.
func (rt *Runtime) Run(ctx context.Context) error {
	if !rt.running.CompareAndSwap(false, true) {
		return api.ErrAlreadyRunning
	}
	defer close(rt.done)

	if rt.listener != nil {
		fd, err := rt.listener.RawFD()
		if err == nil {
			err = rt.rx.Register(fd, listenerToken)
		}
		if err != nil {
			rt.teardown()
			return fmt.Errorf("register listener: %w", err)
		}
		rt.logger.Printf("listening on %s", rt.listener.Addr())
	}

	stop := context.AfterFunc(ctx, func() { _ = rt.Shutdown() })
	defer stop()

	for !rt.stopping {
		if rt.stopWhenEmpty && rt.reg.Len() == 0 {
			break
		}
		n, err := rt.rx.Wait(rt.events, -1)
		if err != nil {
			rt.logger.Printf("reactor wait: %v", err)
			rt.teardown()
			return fmt.Errorf("reactor wait: %w", err)
		}
		rt.pass(rt.events[:n])
	}
	rt.teardown()
	return nil
}

// pass serves one batch of ready sources: listener first, then
// connections in admission order, then queued commands.
func (rt *Runtime) pass(events []reactor.Event) {
	rt.inPass = true
	defer func() { rt.inPass = false }()

	listenerReady := false
	rt.ready = rt.ready[:0]
	for _, ev := range events {
		switch ev.UserData {
		case reactor.WakeToken:
		case listenerToken:
			listenerReady = true
		default:
			rt.ready = append(rt.ready, api.ConnID(ev.UserData))
		}
	}

	if listenerReady && rt.listener != nil {
		rt.acceptOne()
	}
	for _, id := range rt.ready {
		rt.serve(id)
	}
	rt.runCommands()
	rt.flushRemovals()
}

func (rt *Runtime) acceptOne() {
	tr, err := rt.listener.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, api.ErrTransportClosed) {
			rt.logger.Printf("listener closed")
			rt.dropListener()
			return
		}
		rt.logger.Printf("accept: %v", err)
		return
	}

	id := rt.NextID()
	c, err := protocol.Accept(id, tr, rt.accept)
	if err != nil {
		if protocol.IsPlainRequest(err) && rt.accept.PlainRequest != nil {
			rt.logger.Printf("served plain request from %s", tr.RemoteAddr())
			return
		}
		rt.metrics.Inc(control.MetricHandshakesFailed)
		rt.logger.Printf("handshake with %s failed: %v", tr.RemoteAddr(), err)
		return
	}
	rt.logger.Printf("client %d connected from %s", id, c.RemoteAddr())
	if err := rt.Admit(c); err != nil {
		rt.logger.Printf("admit client %d: %v", id, err)
		c.Close()
	}
}

func (rt *Runtime) applyConfig(cfg *control.Config) {
	rt.accept.HandshakeBuffer = cfg.HandshakeBufferSize
	rt.accept.HandshakeTimeout = cfg.HandshakeTimeout
	rt.accept.Conn.ReadBufferSize = cfg.ReadBufferSize
	rt.accept.Conn.DiscardPartial = cfg.DiscardPartial
}

func (rt *Runtime) dropListener() {
	if fd, err := rt.listener.RawFD(); err == nil {
		_ = rt.rx.Unregister(fd)
	}
	rt.listener = nil
}

// Admit registers an open connection with the loop and dispatches any
// frames already buffered on it. It must be called before Run or on the
// loop goroutine.
func (rt *Runtime) Admit(c *protocol.Conn) error {
	if c == nil {
		return api.ErrInvalidArgument
	}
	fd, err := c.RawFD()
	if err != nil {
		return api.TransportError("admit", err).WithContext("conn", c.ID())
	}
	if err := rt.reg.Add(c); err != nil {
		return err
	}
	if err := rt.rx.Register(fd, uintptr(c.ID())); err != nil {
		rt.reg.Remove(c.ID())
		return api.TransportError("admit", err).WithContext("conn", c.ID())
	}
	rt.fds[c.ID()] = fd
	rt.metrics.Inc(control.MetricConnectionsOpen)
	rt.metrics.Inc(control.MetricConnectionsTotal)
	if rt.onOpen != nil {
		rt.onOpen(rt, c)
	}

	if c.Buffered() > 0 {
		var buf [4]core.Frame
		frames, err := c.DecodeBuffered(buf[:0])
		rt.handle(c, frames, err)
	}
	if !rt.inPass {
		rt.flushRemovals()
	}
	return nil
}

func (rt *Runtime) serve(id api.ConnID) {
	c, ok := rt.reg.Get(id)
	if !ok || rt.isDoomed(id) {
		return
	}
	frames, err := c.ReadFrames(rt.frames[:0])
	rt.frames = frames[:0]
	rt.handle(c, frames, err)
}

// handle dispatches decoded frames, then applies err to the connection.
func (rt *Runtime) handle(c *protocol.Conn, frames []core.Frame, err error) {
	id := c.ID()
	rt.metrics.Add(control.MetricFramesIn, int64(len(frames)))
	for _, f := range frames {
		if rt.isDoomed(id) {
			return
		}
		switch {
		case f.Opcode == core.OpcodeClose:
			rt.logger.Printf("client %d sent CLOSE", id)
			rt.drop(id)
		case f.Opcode.IsData() && len(f.Payload) > 0:
			if rt.dispatch != nil {
				rt.dispatch(rt, id, f)
			}
		}
	}
	if err == nil || rt.isDoomed(id) {
		return
	}
	if api.KindOf(err) == api.KindTransport && errors.Is(err, io.EOF) {
		rt.logger.Printf("client %d disconnected", id)
	} else {
		rt.logger.Printf("dropping client %d: %v", id, err)
	}
	rt.drop(id)
}

// Broadcast sends a TEXT frame to every open connection. It must run on the
// loop goroutine; other goroutines post CmdBroadcast instead.
func (rt *Runtime) Broadcast(payload []byte) (int, error) {
	return rt.broadcast(core.OpcodeText, payload, 0)
}

// BroadcastExcept sends a TEXT frame to every open connection but from.
func (rt *Runtime) BroadcastExcept(from api.ConnID, payload []byte) (int, error) {
	return rt.broadcast(core.OpcodeText, payload, from)
}

// BroadcastMessage sends one frame with opcode to every open connection
// except the one with ID except (zero excludes nobody). It returns how many
// connections accepted the write.
func (rt *Runtime) BroadcastMessage(opcode core.Opcode, payload []byte, except api.ConnID) (int, error) {
	return rt.broadcast(opcode, payload, except)
}

func (rt *Runtime) broadcast(opcode core.Opcode, payload []byte, except api.ConnID) (int, error) {
	if err := core.CheckPayload(payload); err != nil {
		return 0, api.ApplicationError("broadcast", err)
	}
	rt.metrics.Inc(control.MetricBroadcasts)
	sent := 0
	for _, id := range rt.reg.IDs() {
		if id == except {
			continue
		}
		c, ok := rt.reg.Get(id)
		if !ok || rt.isDoomed(id) {
			continue
		}
		if err := c.WriteMessage(opcode, payload); err != nil {
			rt.logger.Printf("send to client %d failed: %v", id, err)
			rt.drop(id)
			continue
		}
		sent++
	}
	rt.metrics.Add(control.MetricFramesOut, int64(sent))
	return sent, nil
}

func (rt *Runtime) runCommands() {
	rt.cmds = rt.mailbox.Drain(rt.cmds[:0])
	for i := range rt.cmds {
		if rt.stopping {
			rt.logger.Printf("discarding %d commands after shutdown", len(rt.cmds)-i)
			break
		}
		rt.execute(rt.cmds[i])
	}
	clear(rt.cmds)
}

func (rt *Runtime) execute(cmd Command) {
	switch cmd.Kind {
	case CmdBroadcast:
		if _, err := rt.broadcast(cmd.opcode(), cmd.Payload, cmd.From); err != nil {
			rt.logger.Printf("broadcast: %v", err)
		}
	case CmdReload:
		if cmd.Load == nil {
			return
		}
		data, err := cmd.Load()
		if err != nil {
			rt.logger.Printf("reload: %v", err)
			return
		}
		if _, err := rt.broadcast(cmd.opcode(), data, 0); err != nil {
			rt.logger.Printf("reload: %v", err)
		}
	case CmdShutdown:
		rt.stopping = true
	case CmdCall:
		if cmd.Fn != nil {
			cmd.Fn(rt)
		}
	default:
		rt.logger.Printf("unknown command %d", cmd.Kind)
	}
}

func (rt *Runtime) isDoomed(id api.ConnID) bool {
	_, ok := rt.doomedSet[id]
	return ok
}

// drop schedules id for removal at the end of the current pass.
func (rt *Runtime) drop(id api.ConnID) {
	if rt.isDoomed(id) {
		return
	}
	rt.doomedSet[id] = struct{}{}
	rt.doomed = append(rt.doomed, id)
}

func (rt *Runtime) flushRemovals() {
	for len(rt.doomed) > 0 {
		batch := rt.doomed
		rt.doomed = nil
		for _, id := range batch {
			c, ok := rt.reg.Remove(id)
			if !ok {
				delete(rt.doomedSet, id)
				continue
			}
			if fd, ok := rt.fds[id]; ok {
				_ = rt.rx.Unregister(fd)
				delete(rt.fds, id)
			}
			if err := c.Close(); err != nil {
				rt.logger.Printf("close client %d: %v", id, err)
			}
			delete(rt.doomedSet, id)
			rt.metrics.Add(control.MetricConnectionsOpen, -1)
			if rt.onClose != nil {
				rt.onClose(rt, c)
			}
		}
	}
}

// teardown sends CLOSE to every remaining connection, releases them and
// the listener, and stops accepting commands.
func (rt *Runtime) teardown() {
	rt.mailbox.Close()
	if rt.listener != nil {
		l := rt.listener
		rt.dropListener()
		if err := l.Close(); err != nil {
			rt.logger.Printf("close listener: %v", err)
		}
	}
	for _, id := range rt.reg.IDs() {
		c, ok := rt.reg.Get(id)
		if !ok {
			continue
		}
		if !rt.isDoomed(id) && c.State() == api.StateOpen {
			if err := c.WriteClose(); err != nil {
				rt.logger.Printf("close frame to client %d: %v", id, err)
			}
		}
		rt.drop(id)
	}
	rt.flushRemovals()
	if rt.ownsReactor {
		_ = rt.rx.Close()
	}
	rt.logger.Printf("runtime stopped")
}
