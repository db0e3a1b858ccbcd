package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/practicerooms/internal/core"
	"github.com/dkeye/practicerooms/internal/domain"
	"github.com/rs/zerolog/log"
)

// StatsStore persists practice time records.
type StatsStore interface {
	// LoadUser returns nil, nil when the user has no record yet.
	LoadUser(ctx context.Context, id domain.UserID) (*domain.UserStats, error)
	SaveUser(ctx context.Context, stats *domain.UserStats) error
}

// Accountant tracks the start of each open practice session and moves elapsed
// time into the user's stats on flush. Times are whole seconds.
type Accountant struct {
	clock  core.Clock
	stats  StatsStore
	starts map[domain.UserID]int64
}

func NewAccountant(clock core.Clock, stats StatsStore) *Accountant {
	return &Accountant{clock: clock, stats: stats, starts: make(map[domain.UserID]int64)}
}

func (a *Accountant) now() int64 { return a.clock.Now().Unix() }

// Begin opens a session for user. It is a no-op if one is already open.
func (a *Accountant) Begin(user domain.UserID) bool {
	if _, ok := a.starts[user]; ok {
		return false
	}
	a.starts[user] = a.now()
	metricLiveSessions.Set(float64(len(a.starts)))
	log.Info().Str("module", "app.accountant").Str("user", string(user)).Msg("beginning session")
	return true
}

func (a *Accountant) Active(user domain.UserID) bool {
	_, ok := a.starts[user]
	return ok
}

// Start returns the unix second the open session is counted from.
func (a *Accountant) Start(user domain.UserID) (int64, bool) {
	s, ok := a.starts[user]
	return s, ok
}

// Flush adds the time since the last flush (or Begin) to the user's counters
// and restarts the count from now. Nothing is lost if saving fails: the start
// only moves after the record is written.
func (a *Accountant) Flush(ctx context.Context, user domain.UserID) (int64, error) {
	start, ok := a.starts[user]
	if !ok {
		return 0, nil
	}
	now := a.now()
	elapsed := now - start

	stats, err := a.stats.LoadUser(ctx, user)
	if err != nil {
		return 0, fmt.Errorf("load stats %s: %w", user, err)
	}
	if stats == nil {
		stats = domain.NewUserStats(user)
		log.Info().Str("module", "app.accountant").Str("user", string(user)).Msg("user created")
	}
	stats.AddSeconds(elapsed)
	if err := a.stats.SaveUser(ctx, stats); err != nil {
		return 0, fmt.Errorf("save stats %s: %w", user, err)
	}

	a.starts[user] = now
	if elapsed > 0 {
		metricPracticeSeconds.Add(float64(elapsed))
	}
	log.Info().Str("module", "app.accountant").Str("user", string(user)).Int64("seconds", elapsed).Msg("practiced")
	return elapsed, nil
}

// End flushes and closes the session. The session is closed even if the
// flush fails, so a departed user is never counted twice.
func (a *Accountant) End(ctx context.Context, user domain.UserID) (int64, error) {
	elapsed, err := a.Flush(ctx, user)
	a.Forget(user)
	return elapsed, err
}

// Forget drops an open session without saving it.
func (a *Accountant) Forget(user domain.UserID) {
	if _, ok := a.starts[user]; !ok {
		return
	}
	delete(a.starts, user)
	metricLiveSessions.Set(float64(len(a.starts)))
}

// FlushAll flushes every present, unmuted member with an open session.
// A failure for one user does not stop the rest.
func (a *Accountant) FlushAll(ctx context.Context, members []domain.Member) error {
	var errs []error
	for _, m := range members {
		if !m.Present || m.Muted || !a.Active(m.UserID) {
			continue
		}
		if _, err := a.Flush(ctx, m.UserID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reset forgets every open session.
func (a *Accountant) Reset() {
	clear(a.starts)
	metricLiveSessions.Set(0)
}
