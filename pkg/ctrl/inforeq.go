// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

package ctrl

import (
	"fmt"
	"time"

	"github.com/lispmob/lispd/pkg/afi"
	"github.com/lispmob/lispd/pkg/lisperr"
	"github.com/lispmob/lispd/pkg/message"
	"github.com/lispmob/lispd/pkg/nonce"
	"github.com/lispmob/lispd/pkg/timerwheel"
)

// infoRequestRetries is the retry budget an individual Info-Request gets
// before its nonce is reclaimed, and infoRequestRetryTimeout the initial
// timeout it retransmits on, doubling per retry up to infoRequestMaxTimeout.
const (
	infoRequestRetries      = 2
	infoRequestRetryTimeout = 3 * time.Second
	infoRequestMaxTimeout   = 32 * time.Second
)

// InfoRequestSendFunc emits an Info-Request carrying nonceVal.
type InfoRequestSendFunc func(nonceVal uint64) error

// InfoReplyResult is what processing one Info-Reply concluded about the
// device's NAT placement.
type InfoReplyResult struct {
	Status      NATStatus
	SelectedRTR afi.Address // zero value unless Status == FullNAT and an RTR was offered
}

// InfoRequester periodically sends Info-Requests to learn the device's NAT
// placement and, when behind a NAT, which RTR to route through. Grounded
// directly on original_source/lispd/lispd_info_reply.c's
// process_info_reply_msg: it compares the global/private ETR addresses
// carried in the reply's NAT-traversal LCAF, selects an RTR from the
// offered list, and fires an explicit Map-Register afterward regardless of
// which NAT branch was taken — modeled here as onMapRegisterNeeded, called
// unconditionally at the end of ProcessReply.
type InfoRequester struct {
	nonces *nonce.Registry
	timers *timerwheel.Wheel
	send   InfoRequestSendFunc

	interval time.Duration
	tracker  NATTracker

	onMapRegisterNeeded func()

	outstanding map[uint64]struct{}
}

// NewInfoRequester constructs a requester that re-sends every interval.
func NewInfoRequester(nonces *nonce.Registry, timers *timerwheel.Wheel, send InfoRequestSendFunc, interval time.Duration, onMapRegisterNeeded func()) *InfoRequester {
	return &InfoRequester{
		nonces:              nonces,
		timers:              timers,
		send:                send,
		interval:            interval,
		onMapRegisterNeeded: onMapRegisterNeeded,
		outstanding:         make(map[uint64]struct{}),
	}
}

// Start issues a nonce, sends the first Info-Request, arms its own
// retransmit timer, and schedules the next periodic send.
func (r *InfoRequester) Start(now time.Time) (uint64, error) {
	entry, err := r.nonces.Issue(nonce.PurposeInfoRequest, infoRequestRetries, infoRequestRetryTimeout, now)
	if err != nil {
		return 0, err
	}
	r.outstanding[entry.Nonce] = struct{}{}

	sendErr := r.send(entry.Nonce)
	r.timers.Schedule(now.Add(infoRequestRetryTimeout), func(fireTime time.Time) {
		r.onTimeout(entry.Nonce, fireTime)
	})
	r.timers.Schedule(now.Add(r.interval), func(fireTime time.Time) {
		_, _ = r.Start(fireTime)
	})
	return entry.Nonce, sendErr
}

// onTimeout retransmits an unanswered Info-Request, doubling its timeout
// per nonce.Registry.Retransmit, until infoRequestRetries is exhausted.
func (r *InfoRequester) onTimeout(n uint64, now time.Time) {
	if _, ok := r.outstanding[n]; !ok {
		return // already answered
	}
	entry, retryOK := r.nonces.Retransmit(n, infoRequestMaxTimeout)
	if !retryOK {
		delete(r.outstanding, n)
		return
	}
	_ = r.send(n)
	r.timers.Schedule(now.Add(entry.NextTimeout), func(fireTime time.Time) {
		r.onTimeout(n, fireTime)
	})
}

// ProcessReply consumes the nonce, derives the NAT status and (if behind a
// full NAT) the RTR to use, folds the status into the tracker, and always
// signals that a fresh Map-Register is due — matching the original
// implementation's unconditional re-register after processing an
// Info-Reply.
func (r *InfoRequester) ProcessReply(msg *message.InfoMessage) (InfoReplyResult, error) {
	if !msg.IsReply {
		return InfoReplyResult{}, fmt.Errorf("ctrl: not an info-reply")
	}
	if _, ok := r.nonces.Consume(msg.Nonce); !ok {
		delete(r.outstanding, msg.Nonce)
		return InfoReplyResult{}, lisperr.ErrNonceMismatch
	}
	delete(r.outstanding, msg.Nonce)

	natAddr, ok := msg.NAT.(afi.LCAFAddress)
	if !ok {
		return InfoReplyResult{}, fmt.Errorf("%w: info-reply missing NAT-traversal LCAF", lisperr.ErrMalformedAddress)
	}
	nat, ok := natAddr.Value.(afi.NATTraversalLCAF)
	if !ok {
		return InfoReplyResult{}, fmt.Errorf("%w: info-reply LCAF is not NAT-traversal", lisperr.ErrMalformedAddress)
	}

	signal := r.classify(nat)
	status := r.tracker.Observe(signal)

	result := InfoReplyResult{Status: status}
	if status == FullNAT && len(nat.RTRs) > 0 {
		result.SelectedRTR = nat.RTRs[0] // deterministic: always the first RTR in listed order
	}

	if r.onMapRegisterNeeded != nil {
		r.onMapRegisterNeeded()
	}

	return result, nil
}

// classify derives a one-shot, one-step NAT signal from a single reply's
// NAT-traversal LCAF: NoNAT if the global and private ETR addresses the
// server observed agree and the ETR port is either absent (0) or equal to
// the MS port, PartialNAT (read as "behind some NAT") otherwise.
// It never returns FullNAT itself — a lone reply only ever carries a
// single BehindNAT-or-not observation; reaching FullNAT requires the
// tracker's lattice to have already climbed to PartialNAT on some earlier
// reply, so ProcessReply folds this signal through NATTracker.Observe
// rather than trusting it as the device's status outright.
func (r *InfoRequester) classify(nat afi.NATTraversalLCAF) NATStatus {
	global, globalOK := afi.AddrOf(nat.GlobalETR)
	private, privateOK := afi.AddrOf(nat.PrivateETR)

	sameAddr := globalOK && privateOK && global == private
	samePort := nat.ETRPort == 0 || nat.MSPort == nat.ETRPort

	if sameAddr && samePort {
		return NoNAT
	}
	return PartialNAT
}

// Status returns the tracker's current NAT-status belief.
func (r *InfoRequester) Status() NATStatus { return r.tracker.Status() }
