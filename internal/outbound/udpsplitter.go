package outbound

import (
	"context"
	"encoding/binary"
	"fmt"
)

// DNSPort is the only UDP destination port the non-Mux splitter (and the
// Mux DNS fast-path) supports; all other UDP destinations are rejected.
const DNSPort = 53

// SplitDNSQueries walks a client stream framed as [u16 length][bytes]*,
// returning each length-prefixed query found fully inside buf along with
// the number of bytes consumed. A short trailing fragment is left unconsumed
// for the caller to re-buffer.
//
// SplitDNSQueries does not reassemble across calls itself; runDNS in
// internal/tunnel keeps the unconsumed tail and prepends it to the next
// WebSocket message.
func SplitDNSQueries(buf []byte) (queries [][]byte, consumed int) {
	off := 0
	for off+2 <= len(buf) {
		qlen := int(binary.BigEndian.Uint16(buf[off : off+2]))
		if off+2+qlen > len(buf) {
			break
		}
		queries = append(queries, buf[off+2:off+2+qlen])
		off += 2 + qlen
	}
	return queries, off
}

// FrameDNSResponse wraps a DoH response the way the non-Mux splitter expects
// it on the wire: [u16 len][bytes], with the VLESS response prefix prepended
// only for the first message of the tunnel (prefix may be nil thereafter).
func FrameDNSResponse(prefix []byte, response []byte) []byte {
	out := make([]byte, 0, len(prefix)+2+len(response))
	out = append(out, prefix...)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(response)))
	out = append(out, lenBuf[:]...)
	out = append(out, response...)
	return out
}

// QueryAndFrame runs one DoH round trip and frames the response, rejecting
// anything but port 53 up front. prefix is prepended only for the first
// response of the tunnel.
func QueryAndFrame(ctx context.Context, dohEndpoint string, port uint16, query []byte, prefix []byte) ([]byte, error) {
	if port != DNSPort {
		return nil, fmt.Errorf("outbound udp port %d: %w", port, ErrUnsupportedUDPPort)
	}
	resp, err := QueryDoH(ctx, dohEndpoint, query)
	if err != nil {
		return nil, err
	}
	return FrameDNSResponse(prefix, resp), nil
}
