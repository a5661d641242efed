// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

package ctrl

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lispmob/lispd/pkg/message"
	"github.com/lispmob/lispd/pkg/nonce"
	"github.com/lispmob/lispd/pkg/timerwheel"
)

func TestMapRequestRetransmitsThenGivesUp(t *testing.T) {
	nonces := nonce.New()
	timers := timerwheel.New()
	now := time.Unix(1_700_000_000, 0)

	var sends int
	var gaveUp bool
	target := message.EIDPrefix{MaskLen: 24}

	mgr := NewMapRequestManager(nonces, timers,
		func(n uint64, tgt message.EIDPrefix, dest netip.AddrPort) error { sends++; return nil },
		func(tgt message.EIDPrefix) { gaveUp = true },
		2, 2*time.Second, 8*time.Second,
	)

	_, err := mgr.Start(target, netip.MustParseAddrPort("192.0.2.1:4342"), now)
	require.NoError(t, err)
	require.Equal(t, 1, sends)

	now = now.Add(3 * time.Second)
	timers.Fire(now)
	require.Equal(t, 2, sends, "first retransmit")
	require.False(t, gaveUp)

	now = now.Add(5 * time.Second)
	timers.Fire(now)
	require.Equal(t, 3, sends, "second retransmit")
	require.False(t, gaveUp)

	now = now.Add(9 * time.Second)
	timers.Fire(now)
	require.True(t, gaveUp, "retry budget exhausted")
	require.Equal(t, 0, mgr.Outstanding())
}

func TestMapRequestCoalescesSameTarget(t *testing.T) {
	nonces := nonce.New()
	timers := timerwheel.New()
	now := time.Unix(1_700_000_000, 0)

	var sends int
	target := message.EIDPrefix{MaskLen: 24}
	dest := netip.MustParseAddrPort("192.0.2.1:4342")

	mgr := NewMapRequestManager(nonces, timers,
		func(n uint64, tgt message.EIDPrefix, d netip.AddrPort) error { sends++; return nil },
		func(tgt message.EIDPrefix) {},
		2, 2*time.Second, 8*time.Second,
	)

	n1, err := mgr.Start(target, dest, now)
	require.NoError(t, err)
	require.Equal(t, 1, sends)

	n2, err := mgr.Start(target, dest, now)
	require.NoError(t, err)
	require.Equal(t, n1, n2, "a second Start for the same outstanding target reuses the nonce")
	require.Equal(t, 1, sends, "no extra Map-Request sent for the coalesced call")
	require.Equal(t, 1, mgr.Outstanding())

	_, ok := mgr.HandleReply(n1)
	require.True(t, ok)

	n3, err := mgr.Start(target, dest, now)
	require.NoError(t, err)
	require.NotEqual(t, n1, n3, "once answered, a fresh Start for the same target issues a new nonce")
	require.Equal(t, 2, sends)
}

func TestMapRequestReplyCancelsRetransmit(t *testing.T) {
	nonces := nonce.New()
	timers := timerwheel.New()
	now := time.Unix(1_700_000_000, 0)

	var sends int
	target := message.EIDPrefix{MaskLen: 32}

	mgr := NewMapRequestManager(nonces, timers,
		func(n uint64, tgt message.EIDPrefix, dest netip.AddrPort) error { sends++; return nil },
		func(tgt message.EIDPrefix) { t.Fatal("should not give up: reply arrived") },
		3, 2*time.Second, 8*time.Second,
	)

	n, err := mgr.Start(target, netip.MustParseAddrPort("192.0.2.1:4342"), now)
	require.NoError(t, err)

	got, ok := mgr.HandleReply(n)
	require.True(t, ok)
	require.Equal(t, target, got)

	timers.Fire(now.Add(time.Hour))
	require.Equal(t, 1, sends, "no retransmit after reply")
}
