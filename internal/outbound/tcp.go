package outbound

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/nullwave/edgetun/internal/bufpool"
)

// ConnectTimeout is the hard ceiling for a TCP dial attempt.
const ConnectTimeout = 3 * time.Second

var dialer = &net.Dialer{}

// Connect dials host:port with a hard ConnectTimeout ceiling. A timeout or
// dial error is wrapped as ErrConnectTimeout for the caller to match on.
func Connect(ctx context.Context, host string, port uint16) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("outbound connect %s: %w", addr, ErrConnectTimeout)
	}
	return conn, nil
}

// Write splits data into bufpool-backed chunks no larger than
// bufpool.ChunkSize and writes each in turn, returning the first error.
// Mux re-uses this for every sub-connection write.
func Write(conn net.Conn, data []byte) error {
	chunks := bufpool.Split(data)
	for _, chunk := range chunks {
		_, err := conn.Write(chunk)
		bufpool.PutChunk(chunk)
		if err != nil {
			return fmt.Errorf("outbound write: %w", err)
		}
	}
	return nil
}

// FrameSink receives bytes read from the upstream socket and is responsible
// for framing and sending them onward (e.g. onto the tunnel's WebSocket
// write queue, prefixed with the response header on the first call).
type FrameSink func(payload []byte) error

// BridgeToWS reads from conn until EOF or error, handing each chunk to sink.
// firstPrefix is prepended to the very first payload handed to sink (the
// VLESS response prefix); it is nil for sub-connections inside a Mux tunnel,
// where the prefix is already attached to the first Mux frame by the caller.
func BridgeToWS(ctx context.Context, conn net.Conn, sink FrameSink, firstPrefix []byte) error {
	buf := make([]byte, bufpool.ChunkSize)
	first := true
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := conn.Read(buf)
		if n > 0 {
			payload := buf[:n]
			if first && len(firstPrefix) > 0 {
				framed := make([]byte, 0, len(firstPrefix)+n)
				framed = append(framed, firstPrefix...)
				framed = append(framed, payload...)
				payload = framed
			}
			first = false
			if sinkErr := sink(payload); sinkErr != nil {
				return fmt.Errorf("outbound bridge sink: %w", sinkErr)
			}
		}
		if err != nil {
			return err // io.EOF on clean close, wrapped net error otherwise
		}
	}
}
