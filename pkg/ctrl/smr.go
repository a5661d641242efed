// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

package ctrl

import (
	"net/netip"
	"time"

	"github.com/lispmob/lispd/pkg/message"
	"github.com/lispmob/lispd/pkg/timerwheel"
)

// smrCoalesceWindow is LISPD_SMR_TIMEOUT: a burst of local mapping changes
// (an interface flapping, several addresses appearing in one netlink batch)
// is folded into a single round of Solicit-Map-Requests rather than one per
// change.
const smrCoalesceWindow = 5 * time.Second

// smrRetryInterval is the spacing between SMR retransmits to a single
// subscriber that hasn't yet acknowledged.
const smrRetryInterval = 2 * time.Second

// smrMaxRetransmit is LISPD_MAX_SMR_RETRANSMIT: an unacknowledged SMR is
// retried this many times before the subscriber is given up on.
const smrMaxRetransmit = 2

// SMRTarget is one cache entry a Solicit-Map-Request round must notify:
// the prefix it holds and the peer that reported it.
type SMRTarget struct {
	Prefix message.EIDPrefix
	Dest   netip.AddrPort
}

// SMRSendFunc emits an SMR-flagged Map-Request for target to dest.
type SMRSendFunc func(target message.EIDPrefix, dest netip.AddrPort) error

// SMRListFunc returns every cache entry that should be solicited in the
// next SMR round.
type SMRListFunc func() []SMRTarget

type smrEntry struct {
	target  SMRTarget
	retries int
	timerID timerwheel.TimerID
}

// SMRManager implements the Solicit-Map-Request state machine: a local
// mapping change (an address or link coming up or going down) is coalesced
// over a short window, then every known cache subscriber is sent an
// SMR-flagged Map-Request and retried until it answers with a fresh
// Map-Request carrying the s (SMRInvoked) bit for the same prefix, or the
// retry budget is exhausted. Grounded on original_source/lispd's SMR
// handling in lispd_map_cache_db.c/defs.h (LISPD_SMR_TIMEOUT,
// LISPD_MAX_SMR_RETRANSMIT) and modeled structurally on this package's
// Prober/RegisterScheduler: one coalescing timer gates the round, then one
// retry timer per outstanding subscriber.
type SMRManager struct {
	timers *timerwheel.Wheel
	send   SMRSendFunc
	list   SMRListFunc

	pending bool

	outstanding map[string]*smrEntry
}

// NewSMRManager constructs a manager. list is consulted once per coalesced
// round to discover who needs soliciting; send emits one SMR per target.
func NewSMRManager(timers *timerwheel.Wheel, send SMRSendFunc, list SMRListFunc) *SMRManager {
	return &SMRManager{
		timers:      timers,
		send:        send,
		list:        list,
		outstanding: make(map[string]*smrEntry),
	}
}

// LocalMappingsChanged records that the device's local mappings changed at
// now and arms the coalescing window if one isn't already pending — a
// second call before the window fires is a no-op, so a storm of changes
// produces exactly one SMR round.
func (m *SMRManager) LocalMappingsChanged(now time.Time) {
	if m.pending {
		return
	}
	m.pending = true
	m.timers.Schedule(now.Add(smrCoalesceWindow), m.fire)
}

func (m *SMRManager) fire(now time.Time) {
	m.pending = false
	for _, target := range m.list() {
		m.solicit(target, now)
	}
}

func (m *SMRManager) solicit(target SMRTarget, now time.Time) {
	key := targetKey(target.Prefix)
	entry := &smrEntry{target: target}
	m.outstanding[key] = entry

	_ = m.send(target.Prefix, target.Dest)
	entry.timerID = m.timers.Schedule(now.Add(smrRetryInterval), func(fireTime time.Time) {
		m.onTimeout(key, fireTime)
	})
}

func (m *SMRManager) onTimeout(key string, now time.Time) {
	entry, ok := m.outstanding[key]
	if !ok {
		return // already acknowledged
	}
	if entry.retries >= smrMaxRetransmit {
		delete(m.outstanding, key)
		return
	}
	entry.retries++
	_ = m.send(entry.target.Prefix, entry.target.Dest)
	entry.timerID = m.timers.Schedule(now.Add(smrRetryInterval), func(fireTime time.Time) {
		m.onTimeout(key, fireTime)
	})
}

// Acknowledge clears an outstanding SMR for prefix, called once the peer's
// fresh, SMRInvoked-flagged Map-Request for that prefix arrives.
func (m *SMRManager) Acknowledge(prefix message.EIDPrefix) {
	key := targetKey(prefix)
	if entry, ok := m.outstanding[key]; ok {
		m.timers.Cancel(entry.timerID)
		delete(m.outstanding, key)
	}
}

// Outstanding reports how many subscribers have not yet acknowledged the
// current SMR round.
func (m *SMRManager) Outstanding() int { return len(m.outstanding) }
