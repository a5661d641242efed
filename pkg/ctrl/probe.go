// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

package ctrl

import (
	"net/netip"
	"time"

	"github.com/lispmob/lispd/pkg/nonce"
	"github.com/lispmob/lispd/pkg/timerwheel"
)

// ProbeSendFunc emits an RLOC-probe Map-Request carrying nonceVal to
// locator.
type ProbeSendFunc func(nonceVal uint64, locator netip.Addr) error

// ProbeStatusFunc reports a probe outcome: reachable is true on every
// answered probe and false once a probe's retry budget is exhausted. It is
// called on each outcome, not only when reachability changes.
type ProbeStatusFunc func(locator netip.Addr, reachable bool)

// Prober drives RLOC probing: a periodic reachability check per locator,
// retried up to a fixed budget before declaring it unreachable. Constants
// mirror original_source/lispd/defs.h's RLOC_PROBING_INTERVAL (periodic,
// while reachable) and DEFAULT_RLOC_PROBING_RETRIES /
// DEFAULT_RLOC_PROBING_INTERVAL (retry budget/spacing while confirming a
// probe in flight).
type Prober struct {
	nonces *nonce.Registry
	timers *timerwheel.Wheel
	send   ProbeSendFunc
	onStatusChange ProbeStatusFunc

	periodicInterval time.Duration
	retryInterval    time.Duration
	retries          int

	outstanding map[uint64]netip.Addr
}

// NewProber constructs a prober.
func NewProber(nonces *nonce.Registry, timers *timerwheel.Wheel, send ProbeSendFunc, onStatusChange ProbeStatusFunc, periodicInterval, retryInterval time.Duration, retries int) *Prober {
	return &Prober{
		nonces:           nonces,
		timers:           timers,
		send:             send,
		onStatusChange:   onStatusChange,
		periodicInterval: periodicInterval,
		retryInterval:    retryInterval,
		retries:          retries,
		outstanding:      make(map[uint64]netip.Addr),
	}
}

// Start issues a probe nonce for locator and sends the first probe.
func (p *Prober) Start(locator netip.Addr, now time.Time) (uint64, error) {
	entry, err := p.nonces.Issue(nonce.PurposeRLOCProbe, p.retries, p.retryInterval, now)
	if err != nil {
		return 0, err
	}
	p.outstanding[entry.Nonce] = locator

	sendErr := p.send(entry.Nonce, locator)
	p.timers.Schedule(now.Add(p.retryInterval), func(fireTime time.Time) {
		p.onTimeout(entry.Nonce, fireTime)
	})
	return entry.Nonce, sendErr
}

func (p *Prober) onTimeout(n uint64, now time.Time) {
	locator, ok := p.outstanding[n]
	if !ok {
		return // already answered
	}

	entry, retryOK := p.nonces.Retransmit(n, p.retryInterval)
	if !retryOK {
		delete(p.outstanding, n)
		if p.onStatusChange != nil {
			p.onStatusChange(locator, false)
		}
		return
	}

	_ = p.send(n, locator)
	p.timers.Schedule(now.Add(entry.NextTimeout), func(fireTime time.Time) {
		p.onTimeout(n, fireTime)
	})
}

// HandleReply marks locator reachable and schedules its next periodic
// probe.
func (p *Prober) HandleReply(n uint64, now time.Time) (netip.Addr, bool) {
	locator, ok := p.outstanding[n]
	if !ok {
		return netip.Addr{}, false
	}
	p.nonces.Consume(n)
	delete(p.outstanding, n)

	if p.onStatusChange != nil {
		p.onStatusChange(locator, true)
	}

	p.timers.Schedule(now.Add(p.periodicInterval), func(fireTime time.Time) {
		_, _ = p.Start(locator, fireTime)
	})
	return locator, true
}

// Outstanding reports the number of probes awaiting a reply.
func (p *Prober) Outstanding() int { return len(p.outstanding) }
