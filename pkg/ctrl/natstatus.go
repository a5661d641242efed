// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

// Package ctrl implements the control state machines: map-request
// retransmission and SMR, map-register keepalive, RLOC probing, and NAT
// info-request/info-reply handling. Modeled directly on
// original_source/lispd/lispd_info_reply.c's process_info_reply_msg —
// its ordered-RTR-list ("glist-based") branch is taken as authoritative
// over the file's older duplicate, and its explicit map-register trigger
// fired regardless of which NAT branch was taken is preserved here as
// onMapRegisterNeeded.
package ctrl

import "fmt"

// NATStatus is a device's belief about its own NAT placement.
type NATStatus uint8

const (
	NoNAT NATStatus = iota
	PartialNAT
	FullNAT
)

func (s NATStatus) String() string {
	switch s {
	case NoNAT:
		return "no-nat"
	case PartialNAT:
		return "partial-nat"
	case FullNAT:
		return "full-nat"
	default:
		return fmt.Sprintf("nat-status(%d)", uint8(s))
	}
}

// NATTracker holds the device's current NAT-status belief as a join-semi-
// lattice NoNAT ⊑ PartialNAT ⊑ FullNAT: once observed, a later, lesser
// report never demotes it — a middlebox binding can only get stickier over
// a session, never less NATed, so a stale NoNAT report after a genuine
// FullNAT observation is treated as noise, not a fresh truth. A single
// BehindNAT observation only steps the belief one level up the lattice
// (NoNAT⊔BehindNAT=PartialNAT, PartialNAT⊔BehindNAT=FullNAT), so one info-
// reply can never jump straight from NoNAT to FullNAT.
type NATTracker struct {
	status NATStatus
}

// Observe folds a newly-observed status into the tracker and returns the
// resulting (possibly unchanged) status. observed is itself a one-step
// signal (NoNAT or BehindNAT, the latter represented as PartialNAT): the
// lattice join steps the tracked belief up by at most one level per call,
// never skipping a level on a single observation.
func (t *NATTracker) Observe(observed NATStatus) NATStatus {
	switch {
	case observed <= NoNAT:
		// no information to add; a NoNAT report never demotes.
	case t.status < FullNAT:
		t.status++
	}
	return t.status
}

// Status returns the current belief.
func (t *NATTracker) Status() NATStatus { return t.status }
