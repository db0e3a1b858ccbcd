package app

import (
	"context"
	"time"

	"github.com/dkeye/practicerooms/internal/domain"
)

const DefaultAutolockDelay = 2 * time.Minute

// Policy carries the tunables shared by the engine, the operator and recovery.
type Policy struct {
	AutolockDelay time.Duration
	// SpawnTemplate is the name of dynamically provisioned rooms.
	SpawnTemplate string

	BotRole          string
	TempMutedRole    string
	VerificationRole string
}

func DefaultPolicy() Policy {
	return Policy{
		AutolockDelay:    DefaultAutolockDelay,
		SpawnTemplate:    "Extra Practice Room",
		BotRole:          "Pinano Bot",
		TempMutedRole:    "Temp Muted",
		VerificationRole: "Verification Required",
	}
}

// IsLive reports whether m is eligible for time accounting in room: present,
// not a bot, unmuted, in a managed room that is unlocked or locked to them.
func IsLive(m domain.Member, room *domain.Room) bool {
	return room != nil &&
		m.Present &&
		!m.Bot &&
		!m.Muted &&
		m.RoomID == room.ID &&
		(room.LockedBy == "" || room.LockedBy == m.UserID)
}

// Dispatcher runs f on the event sequence that owns room state.
type Dispatcher func(f func(ctx context.Context))

// Inline runs f immediately. Used when the caller already owns the sequence.
func Inline(f func(ctx context.Context)) { f(context.Background()) }
