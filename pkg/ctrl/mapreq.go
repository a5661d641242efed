// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

package ctrl

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/lispmob/lispd/pkg/afi"
	"github.com/lispmob/lispd/pkg/message"
	"github.com/lispmob/lispd/pkg/nonce"
	"github.com/lispmob/lispd/pkg/timerwheel"
)

// targetKey derives a comparable key for an EID prefix from its wire
// encoding rather than the prefix struct itself, since message.EIDPrefix
// embeds an afi.Address interface whose dynamic type (an LCAF carrying a
// slice) is not always comparable and would panic as a map key.
func targetKey(p message.EIDPrefix) string {
	addr := p.Address
	if addr == nil {
		addr = afi.NoAddress{}
	}
	return fmt.Sprintf("%d:%t:%d:%x", p.IID, p.HasIID, p.MaskLen, addr.Encode())
}

// MapRequestSendFunc emits a Map-Request for nonceVal against target to
// dest.
type MapRequestSendFunc func(nonceVal uint64, target message.EIDPrefix, dest netip.AddrPort) error

// MapRequestGiveUpFunc is called once a Map-Request's retry budget is
// exhausted with no reply.
type MapRequestGiveUpFunc func(target message.EIDPrefix)

type outstandingRequest struct {
	target  message.EIDPrefix
	dest    netip.AddrPort
	timerID timerwheel.TimerID
}

// MapRequestManager drives Map-Request retransmission against the nonce
// registry and timer wheel; solicit-map-requests (SMRs) are driven
// separately by SMRManager. Timeouts follow original_source/lispd/defs.h's
// LISPD_INITIAL_MRQ_TIMEOUT, doubling on each retry up to maxTimeout per
// nonce.Registry.Retransmit.
type MapRequestManager struct {
	nonces  *nonce.Registry
	timers  *timerwheel.Wheel
	send    MapRequestSendFunc
	onGiveUp MapRequestGiveUpFunc

	retries        int
	initialTimeout time.Duration
	maxTimeout     time.Duration

	outstanding map[uint64]*outstandingRequest
	byTarget    map[string]uint64
}

// NewMapRequestManager constructs a manager. retries is the number of
// retransmits attempted beyond the first send.
func NewMapRequestManager(nonces *nonce.Registry, timers *timerwheel.Wheel, send MapRequestSendFunc, onGiveUp MapRequestGiveUpFunc, retries int, initialTimeout, maxTimeout time.Duration) *MapRequestManager {
	return &MapRequestManager{
		nonces:         nonces,
		timers:         timers,
		send:           send,
		onGiveUp:       onGiveUp,
		retries:        retries,
		initialTimeout: initialTimeout,
		maxTimeout:     maxTimeout,
		outstanding:    make(map[uint64]*outstandingRequest),
		byTarget:       make(map[string]uint64),
	}
}

// Start issues a fresh nonce and sends the initial Map-Request, unless an
// identical request for target is already outstanding — in which case the
// existing nonce is returned and no new Map-Request is sent, so a burst of
// traffic toward the same unresolved EID doesn't multiply outstanding
// requests against the map-server.
func (m *MapRequestManager) Start(target message.EIDPrefix, dest netip.AddrPort, now time.Time) (uint64, error) {
	key := targetKey(target)
	if n, ok := m.byTarget[key]; ok {
		if _, stillOut := m.outstanding[n]; stillOut {
			return n, nil
		}
		delete(m.byTarget, key)
	}

	entry, err := m.nonces.Issue(nonce.PurposeMapRequest, m.retries, m.initialTimeout, now)
	if err != nil {
		return 0, err
	}

	req := &outstandingRequest{target: target, dest: dest}
	m.outstanding[entry.Nonce] = req
	m.byTarget[key] = entry.Nonce

	sendErr := m.send(entry.Nonce, target, dest)
	req.timerID = m.timers.Schedule(now.Add(m.initialTimeout), func(fireTime time.Time) {
		m.onTimeout(entry.Nonce, fireTime)
	})
	return entry.Nonce, sendErr
}

func (m *MapRequestManager) onTimeout(n uint64, now time.Time) {
	req, ok := m.outstanding[n]
	if !ok {
		return // already answered or given up
	}

	entry, retryOK := m.nonces.Retransmit(n, m.maxTimeout)
	if !retryOK {
		delete(m.outstanding, n)
		delete(m.byTarget, targetKey(req.target))
		if m.onGiveUp != nil {
			m.onGiveUp(req.target)
		}
		return
	}

	_ = m.send(n, req.target, req.dest)
	req.timerID = m.timers.Schedule(now.Add(entry.NextTimeout), func(fireTime time.Time) {
		m.onTimeout(n, fireTime)
	})
}

// HandleReply consumes the outstanding request matching a received
// Map-Reply's nonce, canceling its retransmit timer. It reports false if
// the nonce does not match any outstanding request (ErrNonceMismatch at
// the caller).
func (m *MapRequestManager) HandleReply(n uint64) (message.EIDPrefix, bool) {
	req, ok := m.outstanding[n]
	if !ok {
		return message.EIDPrefix{}, false
	}
	m.nonces.Consume(n)
	m.timers.Cancel(req.timerID)
	delete(m.outstanding, n)
	delete(m.byTarget, targetKey(req.target))
	return req.target, true
}

// Outstanding reports the number of Map-Requests awaiting a reply.
func (m *MapRequestManager) Outstanding() int { return len(m.outstanding) }
