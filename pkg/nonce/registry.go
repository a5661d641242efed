// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

// Package nonce issues 64-bit nonces for outstanding Map-Requests and
// Info-Requests, drawn from crypto/rand rather than math/rand because a
// predictable nonce would let an off-path attacker forge a matching reply.
package nonce

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// Purpose distinguishes why a nonce was issued, so a received reply can be
// matched back to the right outstanding state machine.
type Purpose uint8

const (
	PurposeMapRequest Purpose = iota
	PurposeInfoRequest
	PurposeRLOCProbe
)

func (p Purpose) String() string {
	switch p {
	case PurposeMapRequest:
		return "map-request"
	case PurposeInfoRequest:
		return "info-request"
	case PurposeRLOCProbe:
		return "rloc-probe"
	default:
		return fmt.Sprintf("purpose(%d)", uint8(p))
	}
}

// Entry tracks one outstanding nonce: what it was issued for, how many
// retransmits remain, and when the next one is due.
type Entry struct {
	Nonce       uint64
	Purpose     Purpose
	IssuedAt    time.Time
	RetriesLeft int
	NextTimeout time.Duration
}

// Registry issues and tracks outstanding nonces. Like the rest of lispd's
// control-plane state, it is not safe for concurrent use — the daemon runs
// its event loop on a single goroutine.
type Registry struct {
	outstanding map[uint64]*Entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{outstanding: make(map[uint64]*Entry)}
}

// draw64 reads a cryptographically random 64-bit value.
func draw64() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// Issue draws a fresh nonce guaranteed not to collide with any currently
// outstanding one, redrawing on collision, and registers it with the given
// purpose, retry budget and initial timeout.
func (r *Registry) Issue(purpose Purpose, retries int, initialTimeout time.Duration, now time.Time) (*Entry, error) {
	for {
		n, err := draw64()
		if err != nil {
			return nil, err
		}
		if _, exists := r.outstanding[n]; exists {
			continue
		}
		e := &Entry{
			Nonce:       n,
			Purpose:     purpose,
			IssuedAt:    now,
			RetriesLeft: retries,
			NextTimeout: initialTimeout,
		}
		r.outstanding[n] = e
		return e, nil
	}
}

// Lookup returns the entry for nonce n, if still outstanding.
func (r *Registry) Lookup(n uint64) (*Entry, bool) {
	e, ok := r.outstanding[n]
	return e, ok
}

// Consume removes and returns the entry for nonce n, reporting whether it
// was outstanding. A reply whose nonce does not match an outstanding entry
// must be dropped by the caller (ErrNonceMismatch at the call site).
func (r *Registry) Consume(n uint64) (*Entry, bool) {
	e, ok := r.outstanding[n]
	if ok {
		delete(r.outstanding, n)
	}
	return e, ok
}

// Retransmit doubles an entry's timeout (capped at maxTimeout) and
// decrements its retry budget, reporting whether a retry remains. When no
// retries remain the entry is removed from the registry and the caller
// should give up on this nonce.
func (r *Registry) Retransmit(n uint64, maxTimeout time.Duration) (*Entry, bool) {
	e, ok := r.outstanding[n]
	if !ok {
		return nil, false
	}
	if e.RetriesLeft <= 0 {
		delete(r.outstanding, n)
		return e, false
	}
	e.RetriesLeft--
	e.NextTimeout *= 2
	if e.NextTimeout > maxTimeout {
		e.NextTimeout = maxTimeout
	}
	return e, true
}

// Len reports the number of outstanding nonces.
func (r *Registry) Len() int { return len(r.outstanding) }
