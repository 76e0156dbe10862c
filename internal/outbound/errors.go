// Package outbound implements the thin TCP connect/write/bridge primitives
// and the DNS-over-HTTPS POST helper shared by the non-Mux UDP splitter and
// the Mux engine's DNS fast-path.
package outbound

import "errors"

var (
	// ErrConnectTimeout means the TCP dial failed: either the 3s connect
	// ceiling elapsed or the dial itself returned an error.
	ErrConnectTimeout = errors.New("outbound: connect timeout")

	// ErrDoHTimeout means the DoH request got no response: either the 5s
	// ceiling elapsed or the request failed in transport.
	ErrDoHTimeout = errors.New("outbound: doh timeout")

	// ErrDoHStatus means the DoH endpoint returned a non-200 response.
	ErrDoHStatus = errors.New("outbound: doh non-200 response")

	// ErrUnsupportedUDPPort means a non-53 UDP destination was requested;
	// only the DNS fast-path is implemented.
	ErrUnsupportedUDPPort = errors.New("outbound: unsupported udp port")
)
