// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

package ctrl

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lispmob/lispd/pkg/nonce"
	"github.com/lispmob/lispd/pkg/timerwheel"
)

func TestProberMarksUnreachableAfterRetriesExhausted(t *testing.T) {
	nonces := nonce.New()
	timers := timerwheel.New()
	now := time.Unix(1_700_000_000, 0)

	var statusEvents []bool
	locator := netip.MustParseAddr("192.0.2.9")

	p := NewProber(nonces, timers,
		func(n uint64, l netip.Addr) error { return nil },
		func(l netip.Addr, reachable bool) { statusEvents = append(statusEvents, reachable) },
		30*time.Second, 5*time.Second, 2,
	)

	_, err := p.Start(locator, now)
	require.NoError(t, err)

	now = now.Add(6 * time.Second)
	timers.Fire(now) // retry 1
	now = now.Add(6 * time.Second)
	timers.Fire(now) // retry 2
	now = now.Add(6 * time.Second)
	timers.Fire(now) // budget exhausted

	require.Equal(t, []bool{false}, statusEvents)
	require.Equal(t, 0, p.Outstanding())
}

func TestProberReplyMarksReachableAndReschedules(t *testing.T) {
	nonces := nonce.New()
	timers := timerwheel.New()
	now := time.Unix(1_700_000_000, 0)

	var statusEvents []bool
	var sendCount int
	locator := netip.MustParseAddr("192.0.2.9")

	p := NewProber(nonces, timers,
		func(n uint64, l netip.Addr) error { sendCount++; return nil },
		func(l netip.Addr, reachable bool) { statusEvents = append(statusEvents, reachable) },
		30*time.Second, 5*time.Second, 2,
	)

	n, err := p.Start(locator, now)
	require.NoError(t, err)
	require.Equal(t, 1, sendCount)

	_, ok := p.HandleReply(n, now)
	require.True(t, ok)
	require.Equal(t, []bool{true}, statusEvents)

	timers.Fire(now.Add(31 * time.Second))
	require.Equal(t, 2, sendCount, "periodic re-probe after successful reply")
}
