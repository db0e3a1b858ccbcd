// Package domain contains entity without logic, just meta-data
package domain

type (
	UserID  string
	GuildID string
	RoleID  string
)

// UserStats is the persisted practice time of a single user.
// Both counters are whole seconds.
type UserStats struct {
	UserID               UserID `json:"id"`
	CurrentPeriodSeconds int64  `json:"current_session_playtime"`
	CumulativeSeconds    int64  `json:"overall_session_playtime"`
}

// NewUserStats returns an empty record for id.
func NewUserStats(id UserID) *UserStats {
	return &UserStats{UserID: id}
}

// AddSeconds adds elapsed to both counters. Negative values are ignored.
func (s *UserStats) AddSeconds(elapsed int64) {
	if elapsed <= 0 {
		return
	}
	s.CurrentPeriodSeconds += elapsed
	s.CumulativeSeconds += elapsed
}

// GuildConfig is the per-guild configuration record.
type GuildConfig struct {
	GuildID        GuildID  `json:"id"`
	PermittedRooms []RoomID `json:"permitted_channels"`
}

// Permits reports whether id is a managed room.
func (g *GuildConfig) Permits(id RoomID) bool {
	if g == nil {
		return false
	}
	for _, r := range g.PermittedRooms {
		if r == id {
			return true
		}
	}
	return false
}
