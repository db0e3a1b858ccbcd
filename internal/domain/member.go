package domain

// Member is one entry of a room membership snapshot.
// Present is false for stale entries that must be ignored.
type Member struct {
	UserID      UserID   `json:"id"`
	DisplayName string   `json:"display_name"`
	RoomID      RoomID   `json:"room_id"`
	Muted       bool     `json:"muted"`
	Present     bool     `json:"present"`
	Bot         bool     `json:"bot"`
	Roles       []RoleID `json:"roles,omitempty"`
}

func (m Member) HasRole(id RoleID) bool {
	if id == "" {
		return false
	}
	for _, r := range m.Roles {
		if r == id {
			return true
		}
	}
	return false
}

// PresentMembers drops stale entries.
func PresentMembers(members []Member) []Member {
	out := make([]Member, 0, len(members))
	for _, m := range members {
		if m.Present {
			out = append(out, m)
		}
	}
	return out
}

// UnmutedMembers keeps present, unmuted entries.
func UnmutedMembers(members []Member) []Member {
	out := make([]Member, 0, len(members))
	for _, m := range members {
		if m.Present && !m.Muted {
			out = append(out, m)
		}
	}
	return out
}

// FindMember returns the present entry for id.
func FindMember(members []Member, id UserID) (Member, bool) {
	for _, m := range members {
		if m.Present && m.UserID == id {
			return m, true
		}
	}
	return Member{}, false
}
