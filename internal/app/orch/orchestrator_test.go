package orch

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/practicerooms/internal/adapters/memory"
	"github.com/dkeye/practicerooms/internal/app"
	"github.com/dkeye/practicerooms/internal/clock"
	"github.com/dkeye/practicerooms/internal/domain"
	"github.com/dkeye/practicerooms/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testGuild = domain.GuildID("guild")
	roomA     = domain.RoomID("room-a")
	tempRoom  = domain.RoomID("room-temp")
	roomB     = domain.RoomID("room-b")
	lounge    = domain.RoomID("lounge")

	noticeTTL = 30 * time.Second
)

// a Wednesday
var testStart = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

type fixture struct {
	t        *testing.T
	ctx      context.Context
	clock    *clock.Manual
	platform *memory.Platform
	stats    *store.Memory
	orch     *Orchestrator
	policy   app.Policy
}

// newFixture builds a guild with three practice rooms and one unmanaged room.
// setup runs against the platform before the orchestrator resumes.
func newFixture(t *testing.T, setup func(p *memory.Platform)) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		clock:    clock.NewManual(testStart),
		platform: memory.NewPlatform(testGuild),
		stats:    store.NewMemory(),
		policy:   app.DefaultPolicy(),
	}
	f.platform.AddRole(f.policy.BotRole, "role-bot")
	f.platform.AddRole(f.policy.TempMutedRole, "role-tempmuted")
	f.platform.AddRole(f.policy.VerificationRole, "role-verify")
	f.platform.AddChannel(roomA, "Practice Room 1", 1)
	f.platform.AddChannel(tempRoom, f.policy.SpawnTemplate, 2)
	f.platform.AddChannel(roomB, "Practice Room 2", 3)
	f.platform.AddChannel(lounge, "Lounge", 4)
	require.NoError(t, f.stats.SaveGuild(f.ctx, &domain.GuildConfig{
		GuildID:        testGuild,
		PermittedRooms: []domain.RoomID{roomA, tempRoom, roomB},
	}))
	if setup != nil {
		setup(f.platform)
	}

	f.orch = New(Options{
		Guild:     testGuild,
		Platform:  f.platform,
		Store:     f.stats,
		Clock:     f.clock,
		Policy:    f.policy,
		NoticeTTL: noticeTTL,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go f.orch.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-f.orch.done
	})
	require.NoError(t, f.orch.Resume(f.ctx))
	return f
}

func (f *fixture) join(user domain.UserID, room domain.RoomID) {
	f.t.Helper()
	before := f.platform.Join(user, string(user), room)
	require.NoError(f.t, f.orch.OnVoiceState(f.ctx, VoiceChange{UserID: user, Before: before, After: room}))
}

func (f *fixture) leave(user domain.UserID) {
	f.t.Helper()
	before := f.platform.Leave(user)
	require.NoError(f.t, f.orch.OnVoiceState(f.ctx, VoiceChange{UserID: user, Before: before}))
}

func (f *fixture) mute(user domain.UserID, muted bool) {
	f.t.Helper()
	room := f.platform.SelfMute(user, muted)
	require.NoError(f.t, f.orch.OnVoiceState(f.ctx, VoiceChange{UserID: user, Before: room, After: room}))
}

// advance moves the clock and waits for every callback it queued.
func (f *fixture) advance(d time.Duration) {
	f.t.Helper()
	f.clock.Advance(d)
	require.NoError(f.t, f.orch.Do(f.ctx, func(context.Context) error { return nil }))
}

func (f *fixture) view(id domain.RoomID) RoomView {
	f.t.Helper()
	rooms, err := f.orch.Snapshot(f.ctx)
	require.NoError(f.t, err)
	for _, r := range rooms {
		if r.ID == string(id) {
			return r
		}
	}
	f.t.Fatalf("room %s not in snapshot", id)
	return RoomView{}
}

func (f *fixture) live(id domain.RoomID, user domain.UserID) bool {
	for _, m := range f.view(id).Members {
		if m.UserID == string(user) {
			return m.Live
		}
	}
	return false
}

func (f *fixture) seconds(user domain.UserID) (current, total int64) {
	f.t.Helper()
	s, err := f.stats.LoadUser(f.ctx, user)
	require.NoError(f.t, err)
	if s == nil {
		return 0, 0
	}
	return s.CurrentPeriodSeconds, s.CumulativeSeconds
}

func TestAutolockAfterDelay(t *testing.T) {
	f := newFixture(t, nil)
	f.join("alice", roomA)
	assert.True(t, f.view(roomA).PromotionPending)
	assert.True(t, f.live(roomA, "alice"))

	f.advance(f.policy.AutolockDelay - time.Second)
	assert.Empty(t, f.view(roomA).LockedBy)

	f.advance(time.Second)
	v := f.view(roomA)
	assert.Equal(t, "alice", v.LockedBy)
	assert.False(t, v.PromotionPending)

	f.join("bob", roomA)
	assert.False(t, f.live(roomA, "bob"), "room is locked to someone else")
	assert.True(t, f.live(roomA, "alice"))
}

func TestHolderDepartureNeedsFreshSoloPeriod(t *testing.T) {
	f := newFixture(t, nil)
	f.join("alice", roomA)
	f.advance(f.policy.AutolockDelay)
	require.Equal(t, "alice", f.view(roomA).LockedBy)
	f.join("bob", roomA)

	f.leave("alice")
	v := f.view(roomA)
	assert.Empty(t, v.LockedBy, "holder leaving releases the room")
	assert.False(t, v.Suppressed)
	assert.Equal(t, "bob", v.Candidate)
	assert.True(t, v.PromotionPending)
	assert.True(t, f.live(roomA, "bob"))

	f.advance(f.policy.AutolockDelay / 2)
	assert.Empty(t, f.view(roomA).LockedBy, "no relock before a full solo period")
	f.advance(f.policy.AutolockDelay / 2)
	assert.Equal(t, "bob", f.view(roomA).LockedBy)
}

func TestExplicitUnlockSuppressesUntilEmpty(t *testing.T) {
	f := newFixture(t, nil)
	f.join("alice", roomA)
	f.advance(f.policy.AutolockDelay)
	f.join("bob", roomA)

	require.NoError(t, f.orch.UnlockRoom(f.ctx, roomA))
	require.ErrorIs(t, f.orch.UnlockRoom(f.ctx, roomA), ErrNotLocked)
	assert.True(t, f.view(roomA).Suppressed)
	assert.False(t, f.platform.ServerMuted("bob"))

	f.leave("bob")
	f.advance(3 * f.policy.AutolockDelay)
	v := f.view(roomA)
	assert.Empty(t, v.LockedBy)
	assert.True(t, v.Suppressed)
	assert.False(t, v.PromotionPending)

	f.leave("alice")
	assert.False(t, f.view(roomA).Suppressed)
	f.join("alice", roomA)
	f.advance(f.policy.AutolockDelay)
	assert.Equal(t, "alice", f.view(roomA).LockedBy)
}

func TestLockRoomByHand(t *testing.T) {
	f := newFixture(t, nil)
	f.join("alice", roomA)
	f.join("bob", roomA)
	f.join("carol", roomB)
	assert.True(t, f.live(roomA, "alice"))

	require.NoError(t, f.orch.LockRoom(f.ctx, roomA, "bob"))
	assert.Equal(t, "bob", f.view(roomA).LockedBy)
	assert.True(t, f.platform.ServerMuted("alice"))
	assert.False(t, f.live(roomA, "alice"))
	assert.True(t, f.live(roomA, "bob"))

	require.NoError(t, f.orch.LockRoom(f.ctx, roomA, "alice"))
	assert.Equal(t, "alice", f.view(roomA).LockedBy)
	ch := f.platform.ChannelState(roomA)
	_, ok := ch.OverwriteFor("bob")
	assert.False(t, ok, "previous holder's grant is gone")

	assert.ErrorIs(t, f.orch.LockRoom(f.ctx, roomA, "carol"), ErrNotInRoom)
	assert.ErrorIs(t, f.orch.LockRoom(f.ctx, lounge, "carol"), ErrUnmanaged)
}

func TestSessionFollowsMuteAndLeave(t *testing.T) {
	f := newFixture(t, nil)
	f.join("alice", roomA)
	f.advance(10 * time.Second)
	f.mute("alice", true)
	cur, total := f.seconds("alice")
	assert.Equal(t, int64(10), cur)
	assert.Equal(t, int64(10), total)

	f.advance(20 * time.Second)
	f.mute("alice", false)
	f.advance(5 * time.Second)
	f.leave("alice")
	_, total = f.seconds("alice")
	assert.Equal(t, int64(15), total)
}

func TestUserStatsIncludesRunningSession(t *testing.T) {
	f := newFixture(t, nil)
	f.join("alice", roomA)
	f.advance(45 * time.Second)

	s, err := f.orch.UserStats(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(45), s.CumulativeSeconds)

	s, err = f.orch.UserStats(f.ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, s.CumulativeSeconds)
}

func TestUnmanagedRoomIsIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.join("alice", lounge)
	f.advance(f.policy.AutolockDelay)
	_, total := f.seconds("alice")
	assert.Zero(t, total)
	assert.Empty(t, f.platform.ChannelState(lounge).Overwrites)
}

func TestPermitAndForbidRoom(t *testing.T) {
	f := newFixture(t, nil)
	f.join("alice", lounge)

	require.NoError(t, f.orch.PermitRoom(f.ctx, lounge))
	assert.True(t, f.live(lounge, "alice"))
	cfg, err := f.stats.LoadGuild(f.ctx, testGuild)
	require.NoError(t, err)
	assert.Equal(t, []domain.RoomID{roomA, tempRoom, roomB, lounge}, cfg.PermittedRooms)

	f.advance(30 * time.Second)
	require.NoError(t, f.orch.ForbidRoom(f.ctx, lounge))
	_, total := f.seconds("alice")
	assert.Equal(t, int64(30), total, "forbidding closes the session")

	cfg, err = f.stats.LoadGuild(f.ctx, testGuild)
	require.NoError(t, err)
	assert.Equal(t, []domain.RoomID{roomA, tempRoom, roomB}, cfg.PermittedRooms)
	assert.ErrorIs(t, f.orch.ForbidRoom(f.ctx, lounge), ErrUnmanaged)
	assert.ErrorIs(t, f.orch.PermitRoom(f.ctx, "missing"), ErrUnknownRoom)
}

func TestBatchEvaluatesAfterWholeBatch(t *testing.T) {
	f := newFixture(t, nil)
	before := f.platform.Join("alice", "alice", roomA)
	f.platform.Join("bob", "bob", roomA)
	require.NoError(t, f.orch.OnVoiceStates(f.ctx, []VoiceChange{
		{UserID: "alice", Before: before, After: roomA},
		{UserID: "bob", After: roomA},
	}))
	v := f.view(roomA)
	assert.Empty(t, v.Candidate, "nobody was ever alone")
	assert.False(t, v.PromotionPending)
}

func TestResetPeriodFlushesFirst(t *testing.T) {
	f := newFixture(t, nil)
	f.join("alice", roomA)
	f.advance(time.Minute)
	require.NoError(t, f.orch.ResetPeriod(f.ctx))
	cur, total := f.seconds("alice")
	assert.Zero(t, cur)
	assert.Equal(t, int64(60), total)
}

func TestStoppedOrchestratorRejectsWork(t *testing.T) {
	o := New(Options{
		Guild:    testGuild,
		Platform: memory.NewPlatform(testGuild),
		Store:    store.NewMemory(),
		Clock:    clock.NewManual(testStart),
		Policy:   app.DefaultPolicy(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o.Run(ctx)
	assert.ErrorIs(t, o.Resume(context.Background()), ErrStopped)
}
