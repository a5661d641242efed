// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

// Package lisperr defines the typed error kinds used by lispd's wire codec,
// mapping store, nonce registry and authentication layer. Decode/verify
// errors are always local: callers log and discard, they never propagate
// synchronously past the component that detected them.
package lisperr

import "errors"

var (
	// ErrMalformedAddress is returned when an address field cannot be parsed.
	ErrMalformedAddress = errors.New("lisp: malformed address")

	// ErrUnknownAFI is returned for an AFI value the codec does not recognize.
	ErrUnknownAFI = errors.New("lisp: unknown AFI")

	// ErrUnknownLCAFType is returned for an LCAF type the codec does not recognize.
	ErrUnknownLCAFType = errors.New("lisp: unknown LCAF type")

	// ErrTruncatedRecord is returned when bytes run out mid-record.
	ErrTruncatedRecord = errors.New("lisp: truncated record")

	// ErrLocatorOverflow is returned when locator records exceed the record bound.
	ErrLocatorOverflow = errors.New("lisp: locator records overflow record bound")

	// ErrAuthLenMismatch is returned when the auth-data length does not match the algorithm.
	ErrAuthLenMismatch = errors.New("lisp: authentication data length mismatch")

	// ErrAuthFailed is returned when the recomputed MAC does not match.
	ErrAuthFailed = errors.New("lisp: authentication failed")

	// ErrNonceMismatch is returned when a reply's nonce is not outstanding.
	ErrNonceMismatch = errors.New("lisp: nonce mismatch")

	// ErrNotFound is returned when a lookup finds no matching entry.
	ErrNotFound = errors.New("lisp: not found")

	// ErrExists is returned when an insert collides with an existing entry.
	ErrExists = errors.New("lisp: already exists")

	// ErrInvalidPrefix is returned when a mask length is invalid for the address family.
	ErrInvalidPrefix = errors.New("lisp: invalid prefix")

	// ErrNetworkUnreachable is returned when a send cannot reach its destination.
	ErrNetworkUnreachable = errors.New("lisp: network unreachable")

	// ErrSocketError wraps a failure from the underlying socket layer.
	ErrSocketError = errors.New("lisp: socket error")

	// ErrResourceExhausted is returned when a resource limit (e.g. MTU cap) is hit.
	ErrResourceExhausted = errors.New("lisp: resource exhausted")
)
