// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

package ctrl

import (
	"time"

	"github.com/lispmob/lispd/pkg/timerwheel"
)

// RegisterScheduler re-sends a device's Map-Register on a fixed period,
// matching original_source/lispd/defs.h's MAP_REGISTER_INTERVAL (60s by
// default, injected by the caller rather than hardcoded here).
type RegisterScheduler struct {
	timers   *timerwheel.Wheel
	interval time.Duration
	send     func(now time.Time)
	timerID  timerwheel.TimerID
	running  bool
}

// NewRegisterScheduler constructs a scheduler that invokes send every
// interval.
func NewRegisterScheduler(timers *timerwheel.Wheel, interval time.Duration, send func(now time.Time)) *RegisterScheduler {
	return &RegisterScheduler{timers: timers, interval: interval, send: send}
}

// Start sends an immediate Map-Register and arms the periodic re-send.
func (s *RegisterScheduler) Start(now time.Time) {
	if s.running {
		return
	}
	s.running = true
	s.send(now)
	s.reschedule(now)
}

func (s *RegisterScheduler) reschedule(now time.Time) {
	s.timerID = s.timers.Schedule(now.Add(s.interval), func(fireTime time.Time) {
		if !s.running {
			return
		}
		s.send(fireTime)
		s.reschedule(fireTime)
	})
}

// Stop cancels the periodic re-send.
func (s *RegisterScheduler) Stop() {
	s.running = false
	s.timers.Cancel(s.timerID)
}

// TriggerNow forces an immediate Map-Register outside the regular period —
// used when an Info-Reply's NAT branch demands a fresh registration (see
// InfoRequester.ProcessReply) — without disturbing the periodic schedule.
func (s *RegisterScheduler) TriggerNow(now time.Time) {
	if s.running {
		s.send(now)
	}
}
