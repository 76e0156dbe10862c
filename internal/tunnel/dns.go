package tunnel

import (
	"errors"

	"github.com/nullwave/edgetun/internal/outbound"
)

// runDNS drains length-prefixed DNS queries from the greeting remainder and
// every subsequent WebSocket message, resolving each via DoH and writing the
// framed response back. Only destination port 53 is supported; anything
// else closes the tunnel immediately (mirroring the non-Mux splitter's
// single-purpose contract).
func (s *session) runDNS(port uint16, initial []byte, responsePrefix []byte) {
	ctx, cancel := sessionContext()
	defer cancel()

	residue := initial
	first := true

	process := func(buf []byte) ([]byte, bool) {
		queries, consumed := outbound.SplitDNSQueries(buf)
		for _, query := range queries {
			s.addUplink(uint64(len(query)))

			var prefix []byte
			if first {
				prefix = responsePrefix
			}
			resp, err := outbound.QueryAndFrame(ctx, s.d.cfg.DoHEndpoint, port, query, prefix)
			first = false
			if errors.Is(err, outbound.ErrUnsupportedUDPPort) {
				s.log.Warn("tunnel: unsupported udp port, closing tunnel", "port", port)
				return nil, false
			}
			if err != nil {
				s.log.Warn("tunnel: dns query failed", "error", err)
				continue
			}
			s.addDownlink(uint64(len(resp)))
			if writeErr := s.conn.WriteChunk(resp); writeErr != nil {
				return nil, false
			}
		}
		return append([]byte(nil), buf[consumed:]...), true
	}

	next, ok := process(residue)
	if !ok {
		return
	}
	residue = next

	for {
		chunk, err := s.conn.ReadChunk()
		if err != nil {
			return
		}
		next, ok := process(append(residue, chunk...))
		if !ok {
			return
		}
		residue = next
	}
}
