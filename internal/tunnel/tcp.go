package tunnel

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/nullwave/edgetun/internal/bufpool"
	"github.com/nullwave/edgetun/internal/outbound"
)

// runTCP dials greeting.Address:port, writes the greeting-embedded initial
// payload (retrying once against the configured proxy host if that first
// connect produces zero inbound bytes before remote EOF), then bridges the
// remote socket and the WebSocket in both directions until either closes.
func (s *session) runTCP(addr string, port uint16, initial []byte, responsePrefix []byte) {
	ctx, cancel := sessionContext()
	defer cancel()

	conn, firstChunk, firstReadErr, dialErr := s.connectTCPWithRetry(ctx, addr, port, initial)
	if dialErr != nil {
		s.log.Warn("tunnel: tcp connect failed", "addr", addr, "port", port, "error", dialErr)
		return
	}
	defer conn.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		s.pumpTCPDownstream(ctx, conn, firstChunk, firstReadErr, responsePrefix)
	}()

	for {
		chunk, err := s.conn.ReadChunk()
		if err != nil {
			break
		}
		if writeErr := outbound.Write(conn, chunk); writeErr != nil {
			s.log.Warn("tunnel: tcp upstream write failed", "error", writeErr)
			break
		}
		s.addUplink(uint64(len(chunk)))
	}

	cancel()
	// Closing conn unblocks the downstream Read so wg.Wait can return.
	_ = conn.Close()
	wg.Wait()
}

// connectTCPWithRetry dials addr:port, writes initial, and probes for the
// first inbound chunk. If that probe yields zero bytes before EOF/error, it
// retries once against the configured proxy host (falling back to addr if
// unset), replaying initial.
func (s *session) connectTCPWithRetry(ctx context.Context, addr string, port uint16, initial []byte) (net.Conn, []byte, error, error) {
	conn, firstChunk, firstReadErr, dialErr := s.tryConnectTCP(ctx, addr, port, initial)
	if dialErr != nil {
		return nil, nil, nil, dialErr
	}
	if conn != nil {
		return conn, firstChunk, firstReadErr, nil
	}

	retryHost := s.d.cfg.ProxyIP
	if retryHost == "" {
		retryHost = addr
	}
	return s.tryConnectTCP(ctx, retryHost, port, initial)
}

// tryConnectTCP dials host:port, writes initial, and reads one probe chunk.
// A zero-byte probe (conn==nil, dialErr==nil) signals the caller should
// retry per the TCP retry policy.
func (s *session) tryConnectTCP(ctx context.Context, host string, port uint16, initial []byte) (net.Conn, []byte, error, error) {
	conn, err := outbound.Connect(ctx, host, port)
	if err != nil {
		return nil, nil, nil, err
	}

	if len(initial) > 0 {
		if writeErr := outbound.Write(conn, initial); writeErr != nil {
			conn.Close()
			return nil, nil, nil, writeErr
		}
		s.addUplink(uint64(len(initial)))
	}

	buf := bufpool.GetChunk()[:bufpool.ChunkSize]
	n, readErr := conn.Read(buf)
	if n == 0 {
		conn.Close()
		bufpool.PutChunk(buf[:0])
		if readErr == nil {
			readErr = io.EOF
		}
		return nil, nil, readErr, nil
	}

	chunk := append([]byte(nil), buf[:n]...)
	bufpool.PutChunk(buf[:0])
	return conn, chunk, readErr, nil
}

// pumpTCPDownstream sends firstChunk (if any) as the first WebSocket
// message, prefixed with the response prefix, then continues reading conn
// until EOF or error. firstReadErr, if non-nil, means the probe read already
// observed the end of the stream and no further reads are attempted.
func (s *session) pumpTCPDownstream(ctx context.Context, conn net.Conn, firstChunk []byte, firstReadErr error, responsePrefix []byte) {
	first := true
	send := func(payload []byte) error {
		out := payload
		if first {
			framed := make([]byte, 0, len(responsePrefix)+len(payload))
			framed = append(framed, responsePrefix...)
			framed = append(framed, payload...)
			out = framed
			first = false
		}
		s.addDownlink(uint64(len(payload)))
		return s.conn.WriteChunk(out)
	}

	if len(firstChunk) > 0 {
		if err := send(firstChunk); err != nil {
			return
		}
	}
	if firstReadErr != nil {
		return
	}

	buf := make([]byte, bufpool.ChunkSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := conn.Read(buf)
		if n > 0 {
			if sendErr := send(append([]byte(nil), buf[:n]...)); sendErr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
