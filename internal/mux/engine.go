// Package mux implements the Mux.Cool session engine: the sub-connection
// table, pending-data queues, write serialization, host sub-request budget,
// duplicate-End suppression, and the DNS fast-path, all multiplexed inside
// one tunnel's byte stream.
package mux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/nullwave/edgetun/internal/outbound"
	"github.com/nullwave/edgetun/internal/wire"
)

// maxFramesPerFeed guards Feed against an infinite loop on a malformed or
// adversarial stream: a single call never parses more frames than this.
const maxFramesPerFeed = 1000

// connectTimeout mirrors outbound.ConnectTimeout; duplicated here as a named
// constant so the engine's own timeout semantics read standalone.
const connectTimeout = outbound.ConnectTimeout

// Config configures one Engine instance, one per tunnel.
type Config struct {
	MaxSubrequests int
	DoHEndpoint    string
	ResponsePrefix []byte
}

// subConn is one Mux sub-connection's bookkeeping.
type subConn struct {
	id      uint16
	network wire.Network

	mu      sync.Mutex // guards ready/closed/conn/pending; not held across socket writes
	ready   bool
	closed  bool
	conn    net.Conn
	pending [][]byte

	lastActivity time.Time
}

// Engine is the per-tunnel Mux session engine.
type Engine struct {
	cfg   Config
	queue *WriteQueue
	log   *slog.Logger

	mu           sync.Mutex
	subs         map[uint16]*subConn
	ended        *endedSet
	totalTCP     int
	limitReached bool
	residue      []byte
	lastActivity time.Time
	closed       bool
	uplink       uint64
	downlink     uint64
	rejected     uint64
}

// New constructs an Engine. queue is the tunnel's outbound WebSocket frame
// queue; the engine never writes to the WebSocket directly.
func New(cfg Config, queue *WriteQueue, log *slog.Logger) *Engine {
	if cfg.MaxSubrequests <= 0 {
		cfg.MaxSubrequests = 48
	}
	return &Engine{
		cfg:          cfg,
		queue:        queue,
		log:          log,
		subs:         map[uint16]*subConn{},
		ended:        newEndedSet(),
		lastActivity: time.Now(),
	}
}

// Feed parses as many complete Mux frames as it can out of chunk (prefixed
// by any previously buffered residue) and dispatches each in turn. An
// incomplete trailing frame is kept as the new residue. A malformed frame
// is a protocol error: the tunnel must be torn down, so Feed returns it.
func (e *Engine) Feed(ctx context.Context, chunk []byte) error {
	e.mu.Lock()
	e.lastActivity = time.Now()
	var buf []byte
	if len(e.residue) == 0 {
		buf = chunk
	} else {
		buf = make([]byte, 0, len(e.residue)+len(chunk))
		buf = append(buf, e.residue...)
		buf = append(buf, chunk...)
	}
	e.mu.Unlock()

	off := 0
	for i := 0; i < maxFramesPerFeed && off < len(buf); i++ {
		f, n, err := wire.ParseMuxFrame(buf[off:])
		if err != nil {
			if errors.Is(err, wire.ErrShortBuffer) || isIncomplete(err) {
				break // wait for more bytes; keep buf[off:] as residue
			}
			return fmt.Errorf("mux engine feed: %w", err)
		}
		if n <= 0 {
			return fmt.Errorf("mux engine: zero-length frame advance: %w", wire.ErrMalformed)
		}
		e.dispatch(ctx, f)
		off += n
	}

	e.mu.Lock()
	if off < len(buf) {
		e.residue = append([]byte(nil), buf[off:]...)
	} else {
		e.residue = nil
	}
	e.mu.Unlock()

	return nil
}

func isIncomplete(err error) bool {
	return errors.Is(err, wire.ErrIncomplete)
}

func (e *Engine) dispatch(ctx context.Context, f wire.Frame) {
	switch f.Status {
	case wire.StatusNew:
		e.handleNew(ctx, f)
	case wire.StatusKeep:
		e.handleKeep(ctx, f)
	case wire.StatusEnd:
		e.handleEnd(f)
	case wire.StatusKeepAlive:
		e.handleKeepAlive(f)
	}
}

func (e *Engine) handleNew(ctx context.Context, f wire.Frame) {
	e.ended.Remove(f.SubID)

	e.mu.Lock()
	if f.Network == wire.NetworkTCP && (e.limitReached || e.totalTCP >= e.cfg.MaxSubrequests) {
		e.limitReached = true
		e.rejected++
		e.mu.Unlock()
		e.sendEnd(f.SubID)
		e.ended.Add(f.SubID)
		return
	}
	if f.Network == wire.NetworkTCP {
		e.totalTCP++
	}
	sub := &subConn{id: f.SubID, network: f.Network, lastActivity: time.Now()}
	e.subs[f.SubID] = sub
	e.mu.Unlock()

	switch f.Network {
	case wire.NetworkTCP:
		go e.connectTCP(ctx, sub, f.Addr, f.Port, f.Data)
	case wire.NetworkUDP:
		sub.mu.Lock()
		sub.ready = true
		sub.mu.Unlock()
		if f.Port != outbound.DNSPort {
			e.sendEnd(f.SubID)
			e.removeSub(f.SubID)
			e.ended.Add(f.SubID)
			return
		}
		if f.HasData() {
			go e.handleDNSQuery(ctx, f.SubID, f.Data)
		}
	}
}

func (e *Engine) handleKeep(ctx context.Context, f wire.Frame) {
	e.mu.Lock()
	sub, found := e.subs[f.SubID]
	e.mu.Unlock()

	if !found {
		if !e.ended.Contains(f.SubID) {
			e.sendEnd(f.SubID)
			e.ended.Add(f.SubID)
		}
		return
	}

	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.lastActivity = time.Now()

	switch sub.network {
	case wire.NetworkUDP:
		sub.mu.Unlock()
		if f.HasData() {
			go e.handleDNSQuery(ctx, f.SubID, f.Data)
		}
		return
	case wire.NetworkTCP:
		if !sub.ready {
			sub.pending = append(sub.pending, append([]byte(nil), f.Data...))
			sub.mu.Unlock()
			return
		}
		conn := sub.conn
		sub.mu.Unlock()

		if err := outbound.Write(conn, f.Data); err != nil {
			e.log.Warn("mux: sub write error, closing", "sub_id", f.SubID, "error", err)
			e.closeSub(f.SubID, true)
			return
		}
		e.mu.Lock()
		e.uplink += uint64(len(f.Data))
		e.mu.Unlock()
	}
}

func (e *Engine) handleEnd(f wire.Frame) {
	e.mu.Lock()
	_, found := e.subs[f.SubID]
	e.mu.Unlock()

	if !found {
		e.ended.Add(f.SubID)
		return
	}
	e.closeSub(f.SubID, true)
}

func (e *Engine) handleKeepAlive(f wire.Frame) {
	e.mu.Lock()
	sub, found := e.subs[f.SubID]
	e.mu.Unlock()
	if found {
		sub.mu.Lock()
		sub.lastActivity = time.Now()
		sub.mu.Unlock()
	}
}

// connectTCP dials the sub's destination, racing against connectTimeout
// (enforced inside outbound.Connect), then flushes the initial payload and
// any data that queued up while the connect was in flight.
func (e *Engine) connectTCP(ctx context.Context, sub *subConn, addr string, port uint16, initial []byte) {
	conn, err := outbound.Connect(ctx, addr, port)
	if err != nil {
		e.log.Warn("mux: sub connect failed", "sub_id", sub.id, "addr", addr, "port", port, "error", err)
		e.sendEnd(sub.id)
		e.removeSub(sub.id)
		e.ended.Add(sub.id)
		return
	}

	sub.mu.Lock()
	if sub.closed {
		// The sub was ended (or the engine torn down) while this dial was
		// in flight. It's already out of e.subs and an End already sent;
		// leaving conn assigned here would open an untracked socket and
		// let pipeToClient emit stray frames for a dead id.
		sub.mu.Unlock()
		_ = conn.Close()
		return
	}
	sub.conn = conn
	sub.mu.Unlock()

	if len(initial) > 0 {
		if err := outbound.Write(conn, initial); err != nil {
			e.log.Warn("mux: sub initial write failed", "sub_id", sub.id, "error", err)
			e.closeSub(sub.id, true)
			return
		}
		e.mu.Lock()
		e.uplink += uint64(len(initial))
		e.mu.Unlock()
	}
	// ready is set only once the pending queue is seen empty under the lock,
	// so a Keep arriving mid-flush queues behind earlier data instead of
	// writing ahead of it.
	for {
		sub.mu.Lock()
		pending := sub.pending
		sub.pending = nil
		if len(pending) == 0 {
			sub.ready = true
			sub.mu.Unlock()
			break
		}
		sub.mu.Unlock()
		for _, payload := range pending {
			if err := outbound.Write(conn, payload); err != nil {
				e.log.Warn("mux: sub pending write failed", "sub_id", sub.id, "error", err)
				e.closeSub(sub.id, true)
				return
			}
			e.mu.Lock()
			e.uplink += uint64(len(payload))
			e.mu.Unlock()
		}
	}

	go e.pipeToClient(ctx, sub)
}

// pipeToClient reads from the sub's upstream socket until EOF/error and
// wraps each chunk read as a Keep frame on the tunnel's write queue.
func (e *Engine) pipeToClient(ctx context.Context, sub *subConn) {
	buf := make([]byte, 8*1024)
	for {
		select {
		case <-ctx.Done():
			e.closeSub(sub.id, true)
			return
		default:
		}

		n, err := sub.conn.Read(buf)
		if n > 0 {
			e.mu.Lock()
			e.downlink += uint64(n)
			e.mu.Unlock()
			if !e.queue.Enqueue(wire.BuildKeep(sub.id, append([]byte(nil), buf[:n]...))) {
				e.log.Warn("mux: write queue full, dropping frame", "sub_id", sub.id)
			}
		}
		if err != nil {
			e.closeSub(sub.id, true)
			return
		}
	}
}

// handleDNSQuery runs the DoH fast-path for one UDP sub-connection query and
// wraps the response in a Keep frame addressed to subID.
func (e *Engine) handleDNSQuery(ctx context.Context, subID uint16, query []byte) {
	resp, err := outbound.QueryDoH(ctx, e.cfg.DoHEndpoint, query)
	if err != nil {
		e.log.Warn("mux: doh query failed", "sub_id", subID, "error", err)
		return
	}
	if !e.queue.Enqueue(wire.BuildKeep(subID, resp)) {
		e.log.Warn("mux: write queue full, dropping dns response", "sub_id", subID)
	}
}

// closeSub closes a sub's socket (if any), removes it from the table, and,
// when emitUpstreamEnd is set, emits an End frame to the client and records
// the id as ended. A sub already removed is left alone, so each sub gets at
// most one End.
func (e *Engine) closeSub(id uint16, emitUpstreamEnd bool) {
	e.mu.Lock()
	sub, found := e.subs[id]
	if found {
		delete(e.subs, id)
	}
	e.mu.Unlock()
	if !found {
		return
	}

	sub.mu.Lock()
	sub.closed = true
	conn := sub.conn
	sub.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}

	if emitUpstreamEnd {
		e.sendEnd(id)
		e.ended.Add(id)
	}
}

// removeSub removes id from the table without touching any socket; used for
// rejected News that never had a real connection.
func (e *Engine) removeSub(id uint16) {
	e.mu.Lock()
	delete(e.subs, id)
	e.mu.Unlock()
}

func (e *Engine) sendEnd(id uint16) {
	if !e.queue.Enqueue(wire.BuildEnd(id)) {
		e.log.Warn("mux: write queue full, dropping end frame", "sub_id", id)
	}
}

// ActiveCount returns the number of live sub-connections.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// IsIdle reports whether the tunnel has no active subs and has seen no
// traffic for longer than threshold.
func (e *Engine) IsIdle(threshold time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs) == 0 && time.Since(e.lastActivity) > threshold
}

// TrafficTotals returns the cumulative uplink/downlink byte counts observed
// across every sub-connection this engine has ever carried.
func (e *Engine) TrafficTotals() (uplink, downlink uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.uplink, e.downlink
}

// RejectedByBudget returns the number of New frames rejected once the host
// sub-request budget was reached.
func (e *Engine) RejectedByBudget() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rejected
}

// Close tears down every sub-connection and clears engine state. Idempotent.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	subs := e.subs
	e.subs = map[uint16]*subConn{}
	e.mu.Unlock()

	for _, sub := range subs {
		sub.mu.Lock()
		sub.closed = true
		conn := sub.conn
		sub.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
	}
}
