package tunnel

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/nullwave/edgetun/internal/wire"
	"github.com/nullwave/edgetun/internal/wsframe"
)

// maxGreetingBytes bounds how much we'll buffer waiting for a complete
// greeting before giving up on an adversarial or stalled client.
const maxGreetingBytes = 64 * 1024

// session drives one accepted WebSocket from greeting parse through
// whichever mode the greeting selects, until the WebSocket closes.
type session struct {
	d    *Dispatcher
	conn *wsframe.Conn
	log  *slog.Logger

	uuid string

	mu       sync.Mutex
	uplink   uint64
	downlink uint64
	rejected uint64
}

func newSession(d *Dispatcher, conn *wsframe.Conn) *session {
	return &session{d: d, conn: conn, log: d.log}
}

func (s *session) addUplink(n uint64) {
	s.mu.Lock()
	s.uplink += n
	s.mu.Unlock()
}

func (s *session) addDownlink(n uint64) {
	s.mu.Lock()
	s.downlink += n
	s.mu.Unlock()
}

func (s *session) run() {
	defer s.conn.Close()

	buf, greeting, err := s.readGreeting()
	if err != nil {
		s.log.Warn("tunnel: greeting rejected", "error", err)
		return
	}
	s.uuid = greeting.UUID
	responsePrefix := wire.BuildResponsePrefix(greeting.Version)
	rawData := append([]byte(nil), buf[greeting.RawDataIndex:]...)

	defer func() {
		s.mu.Lock()
		up, down, rej := s.uplink, s.downlink, s.rejected
		s.mu.Unlock()
		s.d.recordTunnel(s.uuid, up, down, rej)
	}()

	switch greeting.Command {
	case wire.CommandMux:
		if !s.d.cfg.MuxEnabled {
			s.log.Warn("tunnel: mux classified greeting rejected, mux disabled")
			return
		}
		s.runMux(rawData, responsePrefix)
	case wire.CommandTCP:
		s.runTCP(greeting.Address, greeting.Port, rawData, responsePrefix)
	case wire.CommandUDP:
		s.runDNS(greeting.Port, rawData, responsePrefix)
	}
}

// readGreeting accumulates WebSocket messages (starting with the 0-RTT
// early-data payload, if any) until ParseGreeting succeeds or fails with a
// non-recoverable error.
func (s *session) readGreeting() ([]byte, wire.Greeting, error) {
	var buf []byte
	if len(s.conn.EarlyData) > 0 {
		buf = append(buf, s.conn.EarlyData...)
	}

	for {
		g, err := wire.ParseGreeting(buf, s.d.cfg.Validator)
		if err == nil {
			return buf, g, nil
		}
		if !errors.Is(err, wire.ErrShortBuffer) && !errors.Is(err, wire.ErrIncomplete) {
			return nil, wire.Greeting{}, err
		}
		if len(buf) > maxGreetingBytes {
			return nil, wire.Greeting{}, err
		}

		chunk, readErr := s.conn.ReadChunk()
		if readErr != nil {
			return nil, wire.Greeting{}, readErr
		}
		buf = append(buf, chunk...)
	}
}

func sessionContext() (context.Context, context.CancelFunc) {
	return context.WithCancel(context.Background())
}
