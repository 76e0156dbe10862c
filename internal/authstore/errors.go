// Package authstore implements the tiered authorization cache: an in-memory
// L1, an optional SQLite-backed L2, and a set of pluggable providers that
// supply the authoritative list of authorized tunnel UUIDs.
package authstore

import "errors"

var (
	// ErrNoProviders means FetchAll was called with nothing configured to ask.
	ErrNoProviders = errors.New("authstore: no providers configured")

	// ErrProviderUnavailable names a provider whose Available() check
	// failed. FetchAll skips such providers without returning it.
	ErrProviderUnavailable = errors.New("authstore: provider unavailable")

	// ErrInvalidResponse wraps a provider response that could not be parsed
	// into any of its accepted shapes.
	ErrInvalidResponse = errors.New("authstore: invalid provider response")

	// ErrL2Disabled names an operation that needs an L2 tier when none was
	// configured. The store checks for a nil L2 and skips it instead, so no
	// store method returns this error.
	ErrL2Disabled = errors.New("authstore: l2 cache disabled")
)
