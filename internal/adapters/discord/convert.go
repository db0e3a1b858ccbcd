package discord

import (
	"github.com/bwmarrin/discordgo"
	"github.com/dkeye/practicerooms/internal/domain"
)

var permBits = []struct {
	domain  domain.Permission
	discord int64
}{
	{domain.PermSpeak, discordgo.PermissionVoiceSpeak},
	{domain.PermViewChannel, discordgo.PermissionViewChannel},
	{domain.PermManageChannels, discordgo.PermissionManageChannels},
	{domain.PermManageRoles, discordgo.PermissionManageRoles},
}

func permTo(p domain.Permission) int64 {
	var out int64
	for _, b := range permBits {
		if p.Has(b.domain) {
			out |= b.discord
		}
	}
	return out
}

// permFrom keeps only the bits the rooms care about.
func permFrom(bits int64) domain.Permission {
	var out domain.Permission
	for _, b := range permBits {
		if bits&b.discord != 0 {
			out |= b.domain
		}
	}
	return out
}

func overwriteTo(ow domain.Overwrite) *discordgo.PermissionOverwrite {
	typ := discordgo.PermissionOverwriteTypeRole
	if ow.Kind == domain.OverwriteMember {
		typ = discordgo.PermissionOverwriteTypeMember
	}
	return &discordgo.PermissionOverwrite{
		ID:    ow.TargetID,
		Type:  typ,
		Allow: permTo(ow.Allow),
		Deny:  permTo(ow.Deny),
	}
}

func overwriteFrom(o *discordgo.PermissionOverwrite) domain.Overwrite {
	kind := domain.OverwriteRole
	if o.Type == discordgo.PermissionOverwriteTypeMember {
		kind = domain.OverwriteMember
	}
	return domain.Overwrite{
		TargetID: o.ID,
		Kind:     kind,
		Allow:    permFrom(o.Allow),
		Deny:     permFrom(o.Deny),
	}
}

func channelFrom(ch *discordgo.Channel) domain.Channel {
	out := domain.Channel{
		ID:       domain.RoomID(ch.ID),
		GuildID:  domain.GuildID(ch.GuildID),
		Name:     ch.Name,
		Position: ch.Position,
	}
	for _, o := range ch.PermissionOverwrites {
		out.Overwrites = append(out.Overwrites, overwriteFrom(o))
	}
	return out
}

// memberFrom builds a snapshot entry. m is nil when the user has left the
// guild while their voice state lingers.
func memberFrom(vs *discordgo.VoiceState, m *discordgo.Member) domain.Member {
	out := domain.Member{
		UserID:  domain.UserID(vs.UserID),
		RoomID:  domain.RoomID(vs.ChannelID),
		Muted:       vs.Mute || vs.SelfMute,
		Present:     m != nil,
		DisplayName: vs.UserID,
	}
	if m == nil {
		m = vs.Member
	}
	if m == nil {
		return out
	}
	for _, r := range m.Roles {
		out.Roles = append(out.Roles, domain.RoleID(r))
	}
	switch {
	case m.Nick != "":
		out.DisplayName = m.Nick
	case m.User != nil && m.User.Username != "":
		out.DisplayName = m.User.Username
	}
	if m.User != nil {
		out.Bot = m.User.Bot
	}
	return out
}
