package orch

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndOfWeek(t *testing.T) {
	cases := map[string]struct {
		at   time.Time
		want time.Time
	}{
		"wednesday": {testStart, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)},
		"sunday":    {time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC), time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)},
		"monday":    {time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), time.Date(2026, 10, 26, 0, 0, 0, 0, time.UTC)},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, EndOfWeek(tc.at))
		})
	}
}

func TestRenderStatus(t *testing.T) {
	rooms := []RoomView{
		{ID: "a", Name: "Practice Room 1", LockedBy: "alice", Members: []MemberView{
			{UserID: "alice", Live: true},
			{UserID: "bob", Muted: true},
			{UserID: "ghost", Stale: true},
		}},
		{ID: "empty", Name: "Practice Room 2", Members: []MemberView{{UserID: "old", Stale: true}}},
		{ID: "b", Name: "Extra Practice Room (64kbps)", Members: []MemberView{{UserID: "carol", Live: true}}},
	}
	got := RenderStatus(rooms, testStart, EndOfWeek(testStart))
	want := "**Practice Rooms**" +
		"\n\nPractice Room 1 | LOCKED by <@alice>" +
		"\n<@alice> :microphone2:" +
		"\n<@bob>" +
		"\n<@ghost> :ghost:" +
		"\n\nExtra Practice Room" +
		"\n<@carol> :microphone2:" +
		"\n\nWeekly leaderboard resets in 4 days, 12 hours"
	assert.Equal(t, want, got)
}

func TestSpellDuration(t *testing.T) {
	assert.Equal(t, "1 day, 2 hours, 5 minutes", spellDuration(26*time.Hour+5*time.Minute+40*time.Second))
	assert.Equal(t, "3 hours", spellDuration(3*time.Hour))
	assert.Equal(t, "1 minute", spellDuration(time.Minute))
	assert.Equal(t, "0 minutes", spellDuration(20*time.Second))
}

func TestRefreshStatusEditsOneBoard(t *testing.T) {
	f := newFixture(t, nil)
	f.join("alice", roomA)
	f.platform.AddStale(roomA, "ghost")

	require.NoError(t, f.orch.RefreshStatus(f.ctx))
	msgs := f.platform.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Content, "Practice Room 1\n<@alice> :microphone2:\n<@ghost> :ghost:")

	f.advance(f.policy.AutolockDelay)
	require.NoError(t, f.orch.RefreshStatus(f.ctx))
	msgs = f.platform.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Content, "Practice Room 1 | LOCKED by <@alice>")
}

func TestRefreshStatusRollsWeekOver(t *testing.T) {
	f := newFixture(t, nil)
	f.join("alice", roomA)
	f.advance(EndOfWeek(testStart).Sub(testStart))

	require.NoError(t, f.orch.RefreshStatus(f.ctx))
	cur, total := f.seconds("alice")
	assert.Zero(t, cur)
	assert.Equal(t, int64(EndOfWeek(testStart).Sub(testStart)/time.Second), total)

	board := f.platform.Messages()[0].Content
	assert.True(t, strings.HasSuffix(board, "resets in 7 days"), board)
}

func TestFeedGetsLatestSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	updates, stop := f.orch.Feed().Subscribe()
	defer stop()

	f.join("alice", roomA)
	f.join("bob", roomB)

	var rooms []RoomView
	select {
	case rooms = <-updates:
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}
	var b RoomView
	for _, r := range rooms {
		if r.ID == string(roomB) {
			b = r
		}
	}
	require.Len(t, b.Members, 1, "only the newest snapshot is kept")
	assert.Equal(t, "bob", b.Members[0].UserID)

	stop()
	_, open := <-updates
	assert.False(t, open)
}
