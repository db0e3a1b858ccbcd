package core

import (
	"context"
	"time"

	"github.com/dkeye/practicerooms/internal/domain"
)

// MembershipProvider is the read side of the voice platform.
// Implementations return stale entries with Present=false rather than
// dropping them; callers filter.
type MembershipProvider interface {
	// Channel returns the room's platform view. ok is false when the room no
	// longer exists.
	Channel(ctx context.Context, id domain.RoomID) (ch domain.Channel, ok bool, err error)
	// Members returns the current occupants of a room.
	Members(ctx context.Context, id domain.RoomID) ([]domain.Member, error)
	// RoomOf returns the user's current voice membership.
	RoomOf(ctx context.Context, user domain.UserID) (m domain.Member, ok bool, err error)
}

// PermissionOperator mutates rooms and members on the platform.
// Every call may fail for its own target only.
type PermissionOperator interface {
	Overwrite(ctx context.Context, room domain.RoomID, ow domain.Overwrite) error
	ReplaceOverwrites(ctx context.Context, room domain.RoomID, ows []domain.Overwrite) error
	SetMute(ctx context.Context, user domain.UserID, muted bool) error
	Rename(ctx context.Context, room domain.RoomID, name string) error
}

// RoleDirectory resolves guild roles by name. Missing roles report ok=false.
type RoleDirectory interface {
	RoleID(ctx context.Context, name string) (domain.RoleID, bool)
	EveryoneRoleID() domain.RoleID
}

// Message is a status message posted to the information channel.
type Message struct {
	ID      string
	Content string
}

// Messenger posts and edits status messages in the information channel.
type Messenger interface {
	Send(ctx context.Context, content string) (Message, error)
	Edit(ctx context.Context, id, content string) (Message, error)
	// Find returns the most recent message matching match.
	Find(ctx context.Context, match func(Message) bool) (Message, bool, error)
	Delete(ctx context.Context, id string) error
}

// Timer is a scheduled callback. Stop is safe on fired or stopped timers.
type Timer interface {
	Stop() bool
}

// Clock supplies wall time and delayed callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}
