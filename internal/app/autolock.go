package app

import (
	"context"

	"github.com/dkeye/practicerooms/internal/core"
	"github.com/dkeye/practicerooms/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Action is the outcome of one autolock evaluation.
type Action int

const (
	ActionIdle      Action = iota // nothing pending, nothing scheduled
	ActionDormant                 // suppressed, timer state untouched
	ActionScheduled               // a new promotion timer was scheduled
	ActionPending                 // the existing timer keeps running
	ActionCanceled                // a pending timer was canceled
)

func (a Action) String() string {
	switch a {
	case ActionDormant:
		return "dormant"
	case ActionScheduled:
		return "scheduled"
	case ActionPending:
		return "pending"
	case ActionCanceled:
		return "canceled"
	default:
		return "idle"
	}
}

// Locker performs the lock transition once a promotion fires.
type Locker interface {
	Lock(ctx context.Context, entry *RoomEntry, member domain.Member) error
}

// Engine decides when a room's sole active occupant gets promoted to lock
// holder. It is not safe for concurrent use; every call must happen on the
// event sequence that owns the rooms, and timer callbacks are routed back onto
// it through the dispatcher.
type Engine struct {
	clock    core.Clock
	members  core.MembershipProvider
	locker   Locker
	policy   Policy
	dispatch Dispatcher

	// AfterLock runs after a promotion locked a room.
	AfterLock func(ctx context.Context, entry *RoomEntry)
}

func NewEngine(clock core.Clock, members core.MembershipProvider, locker Locker, policy Policy, dispatch Dispatcher) *Engine {
	if dispatch == nil {
		dispatch = Inline
	}
	if policy.AutolockDelay <= 0 {
		policy.AutolockDelay = DefaultAutolockDelay
	}
	return &Engine{
		clock:    clock,
		members:  members,
		locker:   locker,
		policy:   policy,
		dispatch: dispatch,
	}
}

// Evaluate applies one membership snapshot to the room.
//
// The occupant candidate is the last member who was alone in the room. A timer
// runs while the room is unlocked and the candidate is its only unmuted
// member; any other shape cancels it. An explicit unlock suppresses all of
// this until the candidate leaves or the room empties.
func (e *Engine) Evaluate(entry *RoomEntry, members []domain.Member) Action {
	room := entry.Room
	present := domain.PresentMembers(members)
	logger := log.With().Str("module", "app.autolock").Str("room", string(room.ID)).Logger()

	if room.OccupantCandidate != "" {
		if _, ok := domain.FindMember(present, room.OccupantCandidate); !ok {
			logger.Debug().Str("occupant", string(room.OccupantCandidate)).Msg("occupant left, resetting")
			room.OccupantCandidate = ""
			room.SuppressAutolock = false
		}
	}
	if len(present) == 0 {
		room.OccupantCandidate = ""
		room.SuppressAutolock = false
	}

	if room.SuppressAutolock {
		return ActionDormant
	}

	if len(present) == 1 {
		room.OccupantCandidate = present[0].UserID
	}

	unmuted := domain.UnmutedMembers(present)
	if !room.Locked() && len(unmuted) == 1 && unmuted[0].UserID == room.OccupantCandidate {
		if entry.promotion.Pending() {
			return ActionPending
		}
		e.schedule(entry, unmuted[0].UserID)
		return ActionScheduled
	}

	if entry.promotion.Cancel() {
		metricPromotionsCanceled.Inc()
		logger.Debug().Int("unmuted", len(unmuted)).Msg("promotion canceled")
		return ActionCanceled
	}
	return ActionIdle
}

func (e *Engine) schedule(entry *RoomEntry, candidate domain.UserID) {
	token := uuid.NewString()
	t := e.clock.AfterFunc(e.policy.AutolockDelay, func() {
		e.dispatch(func(ctx context.Context) {
			e.fire(ctx, entry, token)
		})
	})
	entry.promotion.Set(t, token)
	metricPromotionsScheduled.Inc()
	log.Info().
		Str("module", "app.autolock").
		Str("room", string(entry.Room.ID)).
		Str("occupant", string(candidate)).
		Dur("delay", e.policy.AutolockDelay).
		Msg("promotion scheduled")
}

// fire runs on the event sequence when a promotion timer elapses. Conditions
// may have moved while the callback was queued, so everything is checked again.
func (e *Engine) fire(ctx context.Context, entry *RoomEntry, token string) {
	if !entry.promotion.Claim(token) {
		return
	}
	room := entry.Room
	logger := log.With().Str("module", "app.autolock").Str("room", string(room.ID)).Logger()
	if room.SuppressAutolock || room.Locked() {
		logger.Debug().Msg("promotion skipped: suppressed or locked")
		return
	}

	members, err := e.members.Members(ctx, room.ID)
	if err != nil {
		logger.Error().Err(err).Msg("promotion: read members")
		return
	}
	unmuted := domain.UnmutedMembers(members)
	if len(unmuted) != 1 || unmuted[0].UserID != room.OccupantCandidate {
		logger.Debug().Int("unmuted", len(unmuted)).Msg("promotion skipped: occupancy changed")
		return
	}

	member := unmuted[0]
	if err := e.locker.Lock(ctx, entry, member); err != nil {
		logger.Error().Err(err).Str("user", string(member.UserID)).Msg("autolock failed")
	} else {
		CountLock("autolock")
		logger.Info().Str("user", string(member.UserID)).Msg("room autolocked")
	}
	// a partial failure still leaves the room record locked
	if !room.Locked() {
		return
	}
	if e.AfterLock != nil {
		e.AfterLock(ctx, entry)
	}
}
