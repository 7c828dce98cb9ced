package daemon

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/shurlinet/meshgit/internal/auth"
	"github.com/shurlinet/meshgit/internal/reputation"
	"github.com/shurlinet/meshgit/pkg/netcore"
)

// wallClock is the netcore.Clock Host drives Protocol with outside of
// tests, backed by time.Now.
type wallClock struct{}

func (wallClock) Now() uint64 { return uint64(time.Now().Unix()) }

// Fetcher performs the actual git transport fetch an IoFetchProject
// intent requests. The reactor never touches git itself; Host calls out
// to Fetcher and reports the outcome back in as a CmdFetchCompleted
// command.
type Fetcher interface {
	Fetch(ctx context.Context, gitURL string, proj netcore.ProjId) netcore.FetchResult
}

// readBufferSize bounds a single Read call's buffer. The frame decoder
// reassembles fragments across calls, so this is a throughput knob, not
// a correctness one.
const readBufferSize = 64 * 1024

type hostEvent struct {
	kind string // "accept", "dialed", "dialFailed", "bytes", "closed", "fetchDone", "snapshot"
	addr string
	conn net.Conn
	data []byte
	err  error

	cmd     netcore.Command
	fetchID netcore.CommandId
	result  netcore.FetchResult

	snapshotReply chan []netcore.PeerSnapshot
}

// Host is the TCP transport that drives a netcore.Protocol reactor: it
// owns the listener, issues outbound dials, runs one read loop per
// connection, and translates Protocol's Io intents into real socket
// operations, feeding the results of those operations back in as
// further events. Every call into Protocol happens on Host's single Run
// goroutine, since Protocol is not safe for concurrent use.
type Host struct {
	proto      *netcore.Protocol
	clock      netcore.Clock
	fetcher    Fetcher
	listenAddr string

	events chan hostEvent

	mu    sync.Mutex
	conns map[string]net.Conn

	commands chan netcore.Command

	history    *reputation.PeerHistory
	gater      *auth.PeerGater
	identified map[string]bool // addr -> already reviewed since negotiating
}

// NewHost builds a Host ready to Run. clock defaults to wall-clock time
// when nil; fetcher may be nil if this node never issues FetchProject
// (a pure relay that tracks no projects).
func NewHost(proto *netcore.Protocol, clock netcore.Clock, fetcher Fetcher, listenAddr string) *Host {
	if clock == nil {
		clock = wallClock{}
	}
	return &Host{
		proto:      proto,
		clock:      clock,
		fetcher:    fetcher,
		listenAddr: listenAddr,
		events:     make(chan hostEvent, 256),
		conns:      make(map[string]net.Conn),
		commands:   make(chan netcore.Command, 32),
		identified: make(map[string]bool),
	}
}

// WithHistory attaches a peer interaction history store. Run records a
// connection each time a managed peer completes its handshake and its
// PeerId becomes known. A nil history (the default) disables recording.
func (h *Host) WithHistory(history *reputation.PeerHistory) *Host {
	h.history = history
	return h
}

// WithGater attaches a peer allow list. Run closes any negotiated
// connection whose PeerId the gater rejects. A nil gater (the default)
// admits every peer.
func (h *Host) WithGater(gater *auth.PeerGater) *Host {
	h.gater = gater
	return h
}

// reviewHandshakes scans the reactor's current peer snapshot for
// connections whose identity has become known since the last scan,
// closes any the gater rejects, and records the rest in the peer
// history. It is cheap to call on every tick: identified tracks which
// addresses have already been reviewed, so a steady-state connection is
// a single map lookup.
func (h *Host) reviewHandshakes() {
	if h.history == nil && h.gater == nil {
		return
	}
	for _, snap := range h.proto.Peers() {
		if snap.State != netcore.StateNegotiated || snap.Id.IsZero() {
			continue
		}
		if h.identified[snap.Addr] {
			continue
		}
		h.identified[snap.Addr] = true

		if h.gater != nil && !h.gater.Allowed(snap.Id) {
			slog.Warn("closing connection to unauthorized peer", "peer", snap.Id.String(), "addr", snap.Addr)
			if c, ok := h.connFor(snap.Addr); ok {
				c.Close()
			}
			continue
		}
		if h.history != nil {
			h.history.RecordConnection(snap.Id.String())
		}
	}
}

// Submit delivers a locally issued Command to the reactor. Safe to call
// from any goroutine; Run serializes it onto the event loop.
func (h *Host) Submit(cmd netcore.Command) {
	h.commands <- cmd
}

// PeerSnapshot returns the reactor's current view of every managed
// connection address. Safe to call from any goroutine: the read itself
// happens on Run's event-loop goroutine, since Protocol is not safe for
// concurrent access.
func (h *Host) PeerSnapshot(ctx context.Context) ([]netcore.PeerSnapshot, error) {
	reply := make(chan []netcore.PeerSnapshot, 1)
	select {
	case h.events <- hostEvent{kind: "snapshot", snapshotReply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run starts the listener, seeds Protocol with persistentAddrs, and
// processes events until ctx is canceled. It returns the error that
// ended the run, or nil on a clean ctx cancellation.
func (h *Host) Run(ctx context.Context, persistentAddrs []string) error {
	ln, err := net.Listen("tcp", h.listenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", h.listenAddr, err)
	}
	defer ln.Close()

	go h.acceptLoop(ctx, ln)

	now := h.clock.Now()
	h.proto.Initialize(now, persistentAddrs)
	h.drainOutbox(ctx)

	timer := time.NewTimer(time.Second)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case ev := <-h.events:
			h.handleEvent(ev)
			h.drainOutbox(ctx)
			h.reviewHandshakes()
		case cmd := <-h.commands:
			h.proto.Command(cmd, h.clock.Now())
			h.drainOutbox(ctx)
		case <-timer.C:
			h.proto.Tick(h.clock.Now())
			h.drainOutbox(ctx)
			h.reviewHandshakes()
		}
	}
}

func (h *Host) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				slog.Error("accept failed", "error", err)
				return
			}
		}
		addr := conn.RemoteAddr().String()
		h.registerConn(addr, conn)
		go h.readLoop(ctx, addr, conn)
		h.sendEvent(ctx, hostEvent{kind: "accept", addr: addr})
	}
}

func (h *Host) readLoop(ctx context.Context, addr string, conn net.Conn) {
	r := bufio.NewReaderSize(conn, readBufferSize)
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			h.sendEvent(ctx, hostEvent{kind: "bytes", addr: addr, data: data})
		}
		if err != nil {
			h.sendEvent(ctx, hostEvent{kind: "closed", addr: addr, err: err})
			return
		}
	}
}

func (h *Host) sendEvent(ctx context.Context, ev hostEvent) {
	select {
	case h.events <- ev:
	case <-ctx.Done():
	}
}

func (h *Host) registerConn(addr string, conn net.Conn) {
	h.mu.Lock()
	h.conns[addr] = conn
	h.mu.Unlock()
}

func (h *Host) connFor(addr string) (net.Conn, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[addr]
	return c, ok
}

func (h *Host) removeConn(addr string) {
	h.mu.Lock()
	delete(h.conns, addr)
	h.mu.Unlock()
}

func (h *Host) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for addr, c := range h.conns {
		c.Close()
		delete(h.conns, addr)
	}
}

func (h *Host) handleEvent(ev hostEvent) {
	now := h.clock.Now()
	switch ev.kind {
	case "accept":
		h.proto.Connected(ev.addr, now)
	case "bytes":
		h.proto.ReceivedBytes(ev.addr, ev.data, now)
	case "closed":
		h.removeConn(ev.addr)
		delete(h.identified, ev.addr)
		h.proto.Disconnected(ev.addr, classifyCloseError(ev.err), now)
	case "dialed":
		h.proto.Connected(ev.addr, now)
	case "dialFailed":
		h.proto.Disconnected(ev.addr, netcore.ReasonDialError(ev.err), now)
	case "fetchDone":
		h.proto.Command(netcore.Command{
			Kind:        netcore.CmdFetchCompleted,
			FetchId:     ev.fetchID,
			FetchResult: ev.result,
		}, now)
	case "snapshot":
		ev.snapshotReply <- h.proto.Peers()
	}
}

// classifyCloseError reports the DisconnectReason a read-loop exit maps
// to. A nil error (EOF via a zero read is never produced by net.Conn;
// io.EOF arrives as err) is treated the same as any other peer-side
// close: a transient ConnectionError eligible for reconnection.
func classifyCloseError(err error) netcore.DisconnectReason {
	return netcore.ReasonConnectionError(err)
}

func (h *Host) drainOutbox(ctx context.Context) {
	for _, io := range h.proto.Outbox() {
		h.executeIo(ctx, io)
	}
}

func (h *Host) executeIo(ctx context.Context, io netcore.Io) {
	switch io.Kind {
	case netcore.IoConnect:
		h.proto.Attempted(io.Addr)
		go h.dial(ctx, io.Addr)
	case netcore.IoDisconnect:
		if c, ok := h.connFor(io.Addr); ok {
			c.Close()
		}
	case netcore.IoWrite:
		h.write(io.Addr, io.Bytes)
	case netcore.IoSetTimer:
		// Run's select loop already wakes on a fixed cadence; a production
		// host would reset a single timer to io.Duration here instead.
	case netcore.IoFetchProject:
		go h.fetch(ctx, io.FetchId, io.GitURL, io.Proj)
	case netcore.IoCommandReply:
		if io.Reply != nil {
			io.Reply.Resolve(io.Value)
		}
	}
}

func (h *Host) dial(ctx context.Context, addr string) {
	d := net.Dialer{Timeout: 10 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		h.sendEvent(ctx, hostEvent{kind: "dialFailed", addr: addr, err: err})
		return
	}
	h.registerConn(addr, conn)
	go h.readLoop(ctx, addr, conn)
	h.sendEvent(ctx, hostEvent{kind: "dialed", addr: addr})
}

func (h *Host) write(addr string, data []byte) {
	c, ok := h.connFor(addr)
	if !ok {
		return
	}
	if _, err := c.Write(data); err != nil {
		slog.Warn("write failed, closing connection", "addr", addr, "error", err)
		c.Close()
	}
}

func (h *Host) fetch(ctx context.Context, fetchID netcore.CommandId, gitURL string, proj netcore.ProjId) {
	if h.fetcher == nil {
		return
	}
	result := h.fetcher.Fetch(ctx, gitURL, proj)
	h.sendEvent(ctx, hostEvent{kind: "fetchDone", fetchID: fetchID, result: result})
}
