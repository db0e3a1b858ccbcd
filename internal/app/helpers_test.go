package app

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/practicerooms/internal/adapters/memory"
	"github.com/dkeye/practicerooms/internal/clock"
	"github.com/dkeye/practicerooms/internal/domain"
	"github.com/dkeye/practicerooms/internal/store"
	"github.com/stretchr/testify/require"
)

const (
	testGuild = domain.GuildID("guild")
	roomA     = domain.RoomID("room-a")
	tempRoom  = domain.RoomID("room-temp")
)

type fixture struct {
	t        *testing.T
	ctx      context.Context
	clock    *clock.Manual
	platform *memory.Platform
	stats    *store.Memory
	registry *Registry
	operator *Operator
	engine   *Engine
	policy   Policy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		clock:    clock.NewManual(time.Unix(1_700_000_000, 0)),
		platform: memory.NewPlatform(testGuild),
		stats:    store.NewMemory(),
		registry: NewRegistry(),
		policy:   DefaultPolicy(),
	}
	f.platform.AddRole(f.policy.BotRole, "role-bot")
	f.platform.AddRole(f.policy.TempMutedRole, "role-tempmuted")
	f.platform.AddRole(f.policy.VerificationRole, "role-verify")
	f.platform.AddChannel(roomA, "Practice Room 1", 1)
	f.platform.AddChannel(tempRoom, f.policy.SpawnTemplate, 2)
	f.operator = NewOperator(f.platform, f.platform, f.platform, f.policy)
	f.engine = NewEngine(f.clock, f.platform, f.operator, f.policy, Inline)
	return f
}

func (f *fixture) entry(id domain.RoomID) *RoomEntry {
	f.t.Helper()
	ch, ok, err := f.platform.Channel(f.ctx, id)
	require.NoError(f.t, err)
	require.True(f.t, ok)
	return f.registry.Ensure(ch, f.policy.SpawnTemplate)
}

// evaluate reads the room's snapshot and runs the engine, like the event loop.
func (f *fixture) evaluate(id domain.RoomID) Action {
	f.t.Helper()
	members, err := f.platform.Members(f.ctx, id)
	require.NoError(f.t, err)
	return f.engine.Evaluate(f.entry(id), members)
}

// join puts an unmuted user into a room.
func (f *fixture) join(user domain.UserID, id domain.RoomID) {
	f.platform.Join(user, string(user), id)
}

func (f *fixture) mute(user domain.UserID, muted bool) {
	f.platform.SelfMute(user, muted)
}

// timerShouldExist is the promotion invariant.
func timerShouldExist(e *RoomEntry, members []domain.Member) bool {
	r := e.Room
	unmuted := domain.UnmutedMembers(members)
	return !r.Locked() && !r.SuppressAutolock && len(unmuted) == 1 && unmuted[0].UserID == r.OccupantCandidate
}
