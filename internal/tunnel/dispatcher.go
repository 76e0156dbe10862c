// Package tunnel implements the per-connection dispatcher that turns one
// upgraded WebSocket into a VLESS-style tunnel: it parses the greeting,
// classifies the tunnel as TCP, UDP/DNS, or Mux, and drives that mode until
// the WebSocket closes.
package tunnel

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/nullwave/edgetun/internal/statsreport"
	"github.com/nullwave/edgetun/internal/wire"
	"github.com/nullwave/edgetun/internal/wsframe"
)

// Config configures a Dispatcher. Validator and Stats may be nil in tests;
// a nil Validator authorizes every UUID, a nil Stats disables reporting.
type Config struct {
	Validator      wire.UUIDValidator
	ProxyIP        string
	DoHEndpoint    string
	MaxSubrequests int
	MuxEnabled     bool
	Stats          *statsreport.Client
}

// Dispatcher accepts WebSocket upgrades and drives one session goroutine per
// accepted tunnel, aggregating traffic and budget-rejection counters across
// every tunnel it has ever served.
type Dispatcher struct {
	cfg Config
	log *slog.Logger

	mu       sync.Mutex
	active   int
	total    uint64
	uplink   uint64
	downlink uint64
	rejected uint64
}

// New builds a Dispatcher.
func New(cfg Config, log *slog.Logger) *Dispatcher {
	return &Dispatcher{cfg: cfg, log: log}
}

// HandleUpgrade is an http.HandlerFunc: non-WebSocket requests are rejected
// with 404 (routing is demonstrably complete per the host's external
// interface, but this dispatcher serves tunnels only), everything else is
// upgraded and handed to a new session goroutine.
func (d *Dispatcher) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.NotFound(w, r)
		return
	}

	conn, err := wsframe.Upgrade(w, r)
	if err != nil {
		d.log.Warn("tunnel: upgrade failed", "error", err)
		return
	}

	d.mu.Lock()
	d.active++
	d.total++
	d.mu.Unlock()

	go d.serve(conn)
}

func (d *Dispatcher) serve(conn *wsframe.Conn) {
	defer func() {
		d.mu.Lock()
		d.active--
		d.mu.Unlock()
	}()

	s := newSession(d, conn)
	s.run()
}

func (d *Dispatcher) recordTunnel(uuid string, uplink, downlink, rejected uint64) {
	d.mu.Lock()
	d.uplink += uplink
	d.downlink += downlink
	d.rejected += rejected
	d.mu.Unlock()

	if d.cfg.Stats != nil && (uplink != 0 || downlink != 0) {
		d.cfg.Stats.Send(statsreport.Report{UUID: uuid, Uplink: uplink, Downlink: downlink})
	}
}

// ActiveTunnels reports the number of tunnels currently being served.
func (d *Dispatcher) ActiveTunnels() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// TotalTunnels reports the cumulative count of accepted tunnels.
func (d *Dispatcher) TotalTunnels() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total
}

// TrafficTotals reports cumulative uplink/downlink bytes across every
// tunnel this dispatcher has ever served.
func (d *Dispatcher) TrafficTotals() (uplink, downlink uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.uplink, d.downlink
}

// RejectedByBudget reports the cumulative count of Mux New frames rejected
// once a tunnel's sub-request budget was reached.
func (d *Dispatcher) RejectedByBudget() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rejected
}
