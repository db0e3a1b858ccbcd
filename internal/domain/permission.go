package domain

// Permission is a platform-neutral permission bitset.
type Permission uint64

const (
	PermSpeak Permission = 1 << iota
	PermViewChannel
	PermManageChannels
	PermManageRoles
)

func (p Permission) Has(q Permission) bool { return p&q == q }

type OverwriteKind int

const (
	OverwriteRole OverwriteKind = iota
	OverwriteMember
)

func (k OverwriteKind) String() string {
	if k == OverwriteMember {
		return "member"
	}
	return "role"
}

// Overwrite is a channel-level permission override for a role or a member.
type Overwrite struct {
	TargetID string        `json:"id"`
	Kind     OverwriteKind `json:"kind"`
	Allow    Permission    `json:"allow"`
	Deny     Permission    `json:"deny"`
}

// Channel is the platform view of a room: its name, order and overwrites.
type Channel struct {
	ID         RoomID      `json:"id"`
	GuildID    GuildID     `json:"guild_id"`
	Name       string      `json:"name"`
	Position   int         `json:"position"`
	Overwrites []Overwrite `json:"overwrites"`
}

// OverwriteFor returns the overwrite targeting id, if any.
func (c Channel) OverwriteFor(id string) (Overwrite, bool) {
	for _, o := range c.Overwrites {
		if o.TargetID == id {
			return o, true
		}
	}
	return Overwrite{}, false
}
