// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

package ctrl

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lispmob/lispd/pkg/message"
	"github.com/lispmob/lispd/pkg/timerwheel"
)

func TestSMRCoalescesBurstIntoOneRound(t *testing.T) {
	timers := timerwheel.New()
	now := time.Unix(1_700_000_000, 0)

	target := SMRTarget{
		Prefix: message.EIDPrefix{MaskLen: 32},
		Dest:   netip.MustParseAddrPort("192.0.2.1:4342"),
	}
	var sends int
	m := NewSMRManager(timers,
		func(p message.EIDPrefix, dest netip.AddrPort) error { sends++; return nil },
		func() []SMRTarget { return []SMRTarget{target} },
	)

	m.LocalMappingsChanged(now)
	m.LocalMappingsChanged(now.Add(time.Second))
	m.LocalMappingsChanged(now.Add(2 * time.Second))

	timers.Fire(now.Add(smrCoalesceWindow))
	require.Equal(t, 1, sends, "a burst of changes produces exactly one SMR round")
	require.Equal(t, 1, m.Outstanding())
}

func TestSMRRetransmitsThenGivesUp(t *testing.T) {
	timers := timerwheel.New()
	now := time.Unix(1_700_000_000, 0)

	target := SMRTarget{
		Prefix: message.EIDPrefix{MaskLen: 32},
		Dest:   netip.MustParseAddrPort("192.0.2.1:4342"),
	}
	var sends int
	m := NewSMRManager(timers,
		func(p message.EIDPrefix, dest netip.AddrPort) error { sends++; return nil },
		func() []SMRTarget { return []SMRTarget{target} },
	)

	m.LocalMappingsChanged(now)
	fireAt := now.Add(smrCoalesceWindow)
	timers.Fire(fireAt)
	require.Equal(t, 1, sends)

	fireAt = fireAt.Add(smrRetryInterval)
	timers.Fire(fireAt)
	require.Equal(t, 2, sends, "first retransmit")

	fireAt = fireAt.Add(smrRetryInterval)
	timers.Fire(fireAt)
	require.Equal(t, 3, sends, "second retransmit")
	require.Equal(t, 1, m.Outstanding())

	fireAt = fireAt.Add(smrRetryInterval)
	timers.Fire(fireAt)
	require.Equal(t, 3, sends, "retry budget exhausted, no further sends")
	require.Equal(t, 0, m.Outstanding())
}

func TestSMRAcknowledgeCancelsRetransmit(t *testing.T) {
	timers := timerwheel.New()
	now := time.Unix(1_700_000_000, 0)

	prefix := message.EIDPrefix{MaskLen: 32}
	target := SMRTarget{Prefix: prefix, Dest: netip.MustParseAddrPort("192.0.2.1:4342")}
	var sends int
	m := NewSMRManager(timers,
		func(p message.EIDPrefix, dest netip.AddrPort) error { sends++; return nil },
		func() []SMRTarget { return []SMRTarget{target} },
	)

	m.LocalMappingsChanged(now)
	fireAt := now.Add(smrCoalesceWindow)
	timers.Fire(fireAt)
	require.Equal(t, 1, sends)

	m.Acknowledge(prefix)
	require.Equal(t, 0, m.Outstanding())

	timers.Fire(fireAt.Add(time.Hour))
	require.Equal(t, 1, sends, "no retransmit once acknowledged")
}
