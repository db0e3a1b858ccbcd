package orch

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dkeye/practicerooms/internal/app"
	"github.com/dkeye/practicerooms/internal/domain"
	"github.com/rs/zerolog/log"
)

// VoiceChange is one user's voice state transition. Before and After are
// equal for a mute toggle and empty when the user was or is not in voice.
type VoiceChange struct {
	UserID domain.UserID `json:"user_id"`
	Before domain.RoomID `json:"before,omitempty"`
	After  domain.RoomID `json:"after,omitempty"`
}

// OnVoiceState applies a voice state change and waits until it is handled.
func (o *Orchestrator) OnVoiceState(ctx context.Context, ch VoiceChange) error {
	return o.Do(ctx, func(ctx context.Context) error {
		o.applyVoice(ctx, ch)
		return nil
	})
}

// OnVoiceStates applies a batch of changes in order and evaluates each touched
// room once, after the whole batch.
func (o *Orchestrator) OnVoiceStates(ctx context.Context, changes []VoiceChange) error {
	return o.Do(ctx, func(ctx context.Context) error {
		var touched []domain.RoomID
		for _, ch := range changes {
			touched = append(touched, o.releaseDeparted(ctx, ch)...)
		}
		o.evaluateRooms(ctx, touched)
		for _, ch := range changes {
			o.reconcileUser(ctx, ch.UserID)
		}
		o.publish(ctx)
		return nil
	})
}

func (o *Orchestrator) applyVoice(ctx context.Context, ch VoiceChange) {
	touched := o.releaseDeparted(ctx, ch)
	o.evaluateRooms(ctx, touched)
	o.reconcileUser(ctx, ch.UserID)
	o.publish(ctx)
}

// releaseDeparted unlocks the room a holder just walked out of and returns the
// managed rooms the change touched.
func (o *Orchestrator) releaseDeparted(ctx context.Context, ch VoiceChange) []domain.RoomID {
	var touched []domain.RoomID
	for _, id := range []domain.RoomID{ch.Before, ch.After} {
		if o.managed(id) && !slices.Contains(touched, id) {
			touched = append(touched, id)
		}
	}
	if ch.Before == "" || ch.Before == ch.After {
		return touched
	}
	e, ok := o.entry(ctx, ch.Before)
	if !ok || e.Room.LockedBy != ch.UserID {
		return touched
	}
	log.Info().Str("module", "orch").Str("room", string(e.Room.ID)).Str("user", string(ch.UserID)).Msg("lock holder left")
	if err := o.Operator.Unlock(ctx, e); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(e.Room.ID)).Msg("unlock after holder left")
	}
	// not a user request, so the room stays eligible for autolock
	e.Room.SuppressAutolock = false
	o.reconcileRoom(ctx, e)
	return touched
}

func (o *Orchestrator) evaluateRooms(ctx context.Context, ids []domain.RoomID) {
	seen := make(map[domain.RoomID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if e, ok := o.entry(ctx, id); ok {
			a := o.evaluate(ctx, e)
			log.Debug().Str("module", "orch").Str("room", string(id)).Stringer("action", a).Msg("evaluated")
		}
	}
}

// LockRoom locks room to user by hand. A room held by someone else changes
// hands; the previous holder loses their grant.
func (o *Orchestrator) LockRoom(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	return o.Do(ctx, func(ctx context.Context) error {
		e, err := o.managedEntry(ctx, room)
		if err != nil {
			return err
		}
		m, ok, err := o.platform.RoomOf(ctx, user)
		if err != nil {
			return fmt.Errorf("lock %s: %w", room, err)
		}
		if !ok || m.RoomID != room {
			return ErrNotInRoom
		}
		if e.Room.LockedBy == user {
			return nil
		}
		if e.Room.Locked() {
			if err := o.Operator.Unlock(ctx, e); err != nil {
				log.Warn().Err(err).Str("module", "orch").Str("room", string(room)).Msg("release previous holder")
			}
		}
		lockErr := o.Operator.Lock(ctx, e, m)
		app.CountLock("manual")
		o.reconcileRoom(ctx, e)
		o.publish(ctx)
		return lockErr
	})
}

// UnlockRoom is the explicit unlock. An occupied room is left suppressed
// until its occupant leaves or it empties.
func (o *Orchestrator) UnlockRoom(ctx context.Context, room domain.RoomID) error {
	return o.Do(ctx, func(ctx context.Context) error {
		e, err := o.managedEntry(ctx, room)
		if err != nil {
			return err
		}
		if !e.Room.Locked() {
			return ErrNotLocked
		}
		unlockErr := o.Operator.Unlock(ctx, e)
		o.evaluate(ctx, e)
		o.reconcileRoom(ctx, e)
		o.publish(ctx)
		return unlockErr
	})
}

func (o *Orchestrator) managedEntry(ctx context.Context, room domain.RoomID) (*app.RoomEntry, error) {
	if !o.managed(room) {
		return nil, ErrUnmanaged
	}
	e, ok := o.entry(ctx, room)
	if !ok {
		return nil, ErrUnknownRoom
	}
	return e, nil
}

// UserStats returns user's counters with any running session flushed in.
func (o *Orchestrator) UserStats(ctx context.Context, user domain.UserID) (*domain.UserStats, error) {
	var out *domain.UserStats
	err := o.Do(ctx, func(ctx context.Context) error {
		if _, err := o.Accountant.Flush(ctx, user); err != nil {
			return err
		}
		s, err := o.store.LoadUser(ctx, user)
		if err != nil {
			return fmt.Errorf("load stats %s: %w", user, err)
		}
		if s == nil {
			s = domain.NewUserStats(user)
		}
		out = s
		return nil
	})
	return out, err
}

// PermitRoom adds room to the managed set and starts watching it.
func (o *Orchestrator) PermitRoom(ctx context.Context, room domain.RoomID) error {
	return o.Do(ctx, func(ctx context.Context) error {
		if _, ok, err := o.platform.Channel(ctx, room); err != nil {
			return fmt.Errorf("permit %s: %w", room, err)
		} else if !ok {
			return ErrUnknownRoom
		}
		if o.managed(room) {
			return nil
		}
		next := append(slices.Clone(o.config.PermittedRooms), room)
		if err := o.saveGuild(ctx, next); err != nil {
			return err
		}
		o.config.PermittedRooms = next
		if e, ok := o.entry(ctx, room); ok {
			o.evaluate(ctx, e)
			o.reconcileRoom(ctx, e)
		}
		log.Info().Str("module", "orch").Str("room", string(room)).Msg("room permitted")
		o.publish(ctx)
		return nil
	})
}

// ForbidRoom drops room from the managed set. A locked room is unlocked first
// and open sessions in it are closed.
func (o *Orchestrator) ForbidRoom(ctx context.Context, room domain.RoomID) error {
	return o.Do(ctx, func(ctx context.Context) error {
		if !o.managed(room) {
			return ErrUnmanaged
		}
		e, ok := o.entry(ctx, room)
		next := slices.DeleteFunc(slices.Clone(o.config.PermittedRooms), func(id domain.RoomID) bool { return id == room })
		if err := o.saveGuild(ctx, next); err != nil {
			return err
		}
		o.config.PermittedRooms = next
		if ok {
			if e.Room.Locked() {
				if err := o.Operator.Unlock(ctx, e); err != nil {
					log.Warn().Err(err).Str("module", "orch").Str("room", string(room)).Msg("unlock forbidden room")
				}
			}
			o.Registry.Remove(room)
			o.endSessions(ctx, room)
		}
		log.Info().Str("module", "orch").Str("room", string(room)).Msg("room forbidden")
		o.publish(ctx)
		return nil
	})
}

func (o *Orchestrator) saveGuild(ctx context.Context, permitted []domain.RoomID) error {
	cfg := &domain.GuildConfig{GuildID: o.guild, PermittedRooms: permitted}
	if err := o.store.SaveGuild(ctx, cfg); err != nil {
		return fmt.Errorf("save guild %s: %w", o.guild, err)
	}
	return nil
}

// PermittedRooms returns the managed room ids in configured order.
func (o *Orchestrator) PermittedRooms(ctx context.Context) ([]domain.RoomID, error) {
	var out []domain.RoomID
	err := o.Do(ctx, func(context.Context) error {
		out = slices.Clone(o.config.PermittedRooms)
		return nil
	})
	return out, err
}

// ResetPeriod closes the current counting period. Running sessions are
// flushed first so their time lands in the period it was spent in.
func (o *Orchestrator) ResetPeriod(ctx context.Context) error {
	return o.Do(ctx, o.resetPeriod)
}

func (o *Orchestrator) resetPeriod(ctx context.Context) error {
	if err := o.flushAll(ctx); err != nil {
		log.Warn().Err(err).Str("module", "orch").Msg("reset period: flush")
	}
	if err := o.store.ResetPeriod(ctx); err != nil {
		return fmt.Errorf("reset period: %w", err)
	}
	o.nextReset = EndOfWeek(o.clock.Now())
	log.Info().Str("module", "orch").Time("next", o.nextReset).Msg("period reset")
	return nil
}

func (o *Orchestrator) flushAll(ctx context.Context) error {
	var errs []error
	for _, id := range o.config.PermittedRooms {
		members, err := o.platform.Members(ctx, id)
		if err != nil {
			continue
		}
		if err := o.Accountant.FlushAll(ctx, members); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) endSessions(ctx context.Context, room domain.RoomID) {
	members, err := o.platform.Members(ctx, room)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room", string(room)).Msg("end sessions: read members")
		return
	}
	for _, m := range members {
		if !o.Accountant.Active(m.UserID) {
			continue
		}
		if _, err := o.Accountant.End(ctx, m.UserID); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("user", string(m.UserID)).Msg("end session")
		}
	}
}
