// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

package ctrl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lispmob/lispd/pkg/timerwheel"
)

func TestRegisterSchedulerFiresImmediatelyThenPeriodically(t *testing.T) {
	timers := timerwheel.New()
	now := time.Unix(1_700_000_000, 0)

	var sends int
	s := NewRegisterScheduler(timers, 60*time.Second, func(time.Time) { sends++ })

	s.Start(now)
	require.Equal(t, 1, sends)

	timers.Fire(now.Add(61 * time.Second))
	require.Equal(t, 2, sends)

	s.Stop()
	timers.Fire(now.Add(200 * time.Second))
	require.Equal(t, 2, sends, "stopped scheduler must not fire again")
}

func TestRegisterSchedulerTriggerNow(t *testing.T) {
	timers := timerwheel.New()
	now := time.Unix(1_700_000_000, 0)

	var sends int
	s := NewRegisterScheduler(timers, 60*time.Second, func(time.Time) { sends++ })
	s.Start(now)
	require.Equal(t, 1, sends)

	s.TriggerNow(now.Add(time.Second))
	require.Equal(t, 2, sends)
}
