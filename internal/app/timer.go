package app

import "github.com/dkeye/practicerooms/internal/core"

// TimerSlot holds at most one scheduled callback. Each schedule carries a token
// so a callback that was already queued when it got replaced or canceled can
// tell it is stale.
type TimerSlot struct {
	timer core.Timer
	token string
}

// Set cancels any current timer and installs t.
func (s *TimerSlot) Set(t core.Timer, token string) {
	s.Cancel()
	s.timer = t
	s.token = token
}

// Cancel stops the pending timer. It reports whether one was pending.
func (s *TimerSlot) Cancel() bool {
	if s.timer == nil {
		return false
	}
	s.timer.Stop()
	s.timer = nil
	s.token = ""
	return true
}

func (s *TimerSlot) Pending() bool { return s.timer != nil }

// Claim empties the slot if token is the current one. A firing callback must
// claim before acting.
func (s *TimerSlot) Claim(token string) bool {
	if s.timer == nil || s.token != token {
		return false
	}
	s.timer = nil
	s.token = ""
	return true
}
