package app

import (
	"testing"
	"time"

	"github.com/dkeye/practicerooms/internal/clock"
	"github.com/stretchr/testify/assert"
)

func TestTimerSlotReplacesAndClaims(t *testing.T) {
	c := clock.NewManual(time.Unix(0, 0))
	var s TimerSlot
	assert.False(t, s.Cancel(), "cancel on empty slot is a no-op")

	fired := 0
	s.Set(c.AfterFunc(time.Second, func() { fired++ }), "a")
	s.Set(c.AfterFunc(time.Second, func() { fired++ }), "b")
	assert.Equal(t, 1, c.Pending(), "setting cancels the previous timer")

	assert.False(t, s.Claim("a"))
	assert.True(t, s.Claim("b"))
	assert.False(t, s.Pending())
	assert.False(t, s.Claim("b"))

	c.Advance(time.Second)
	assert.Equal(t, 1, fired)
	assert.False(t, s.Cancel())
}
