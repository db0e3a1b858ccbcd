package domain

type RoomID string

// Room is the lock state of one managed voice channel.
// Only the autolock engine and the lock operator write the lock fields.
type Room struct {
	ID       RoomID  `json:"id"`
	GuildID  GuildID `json:"guild_id"`
	Name     string  `json:"name"`
	Position int     `json:"position"`

	IsTempRoom   bool   `json:"temp_room"`
	UnlockedName string `json:"unlocked_name,omitempty"`

	OccupantCandidate UserID `json:"occupant,omitempty"`
	SuppressAutolock  bool   `json:"suppress_autolock"`
	LockedBy          UserID `json:"locked_by,omitempty"`
}

func (r *Room) Locked() bool { return r.LockedBy != "" }

// DisplayName is the name users know the room by, which for a locked temp room
// is the name it had before locking.
func (r *Room) DisplayName() string {
	if r.Locked() && r.IsTempRoom && r.UnlockedName != "" {
		return r.UnlockedName
	}
	return r.Name
}
