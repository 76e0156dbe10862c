// Package wire implements the VLESS-style greeting header and the Mux.Cool
// frame codec used to multiplex sub-connections inside one tunnel.
//
// Parsing follows the same convention throughout: a reader takes a byte
// slice and reports how far it got (a consumed count, or
// Greeting.RawDataIndex); on a recoverable error (ErrShortBuffer /
// ErrIncomplete) it consumes nothing and the caller retries from the same
// offset with more bytes. Protocol violations wrap ErrMalformed.
package wire

import "errors"

var (
	// ErrShortBuffer means the caller handed over fewer bytes than the
	// format requires to even begin parsing. Recoverable: buffer more.
	ErrShortBuffer = errors.New("wire: short buffer")

	// ErrIncomplete means parsing started but the declared length runs
	// past the end of the supplied buffer. Recoverable: buffer more.
	ErrIncomplete = errors.New("wire: incomplete frame")

	// ErrMalformed means the bytes violate the protocol outright (bad
	// address type, zero-length domain, unknown status, ...). Not
	// recoverable; the tunnel or sub-connection must be torn down.
	ErrMalformed = errors.New("wire: malformed frame")

	// ErrUnauthorized means the greeting's UUID was rejected by the
	// validator.
	ErrUnauthorized = errors.New("wire: invalid user")
)
