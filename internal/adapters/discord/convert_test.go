package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/dkeye/practicerooms/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestPermissionBitsRoundTrip(t *testing.T) {
	p := domain.PermSpeak | domain.PermManageRoles
	bits := permTo(p)
	assert.Equal(t, int64(discordgo.PermissionVoiceSpeak|discordgo.PermissionManageRoles), bits)
	assert.Equal(t, p, permFrom(bits|discordgo.PermissionSendMessages), "unrelated bits are dropped")
}

func TestOverwriteConversion(t *testing.T) {
	o := overwriteTo(domain.Overwrite{TargetID: "u1", Kind: domain.OverwriteMember, Allow: domain.PermSpeak})
	assert.Equal(t, discordgo.PermissionOverwriteTypeMember, o.Type)
	assert.Equal(t, int64(discordgo.PermissionVoiceSpeak), o.Allow)
	assert.Zero(t, o.Deny)

	ch := channelFrom(&discordgo.Channel{
		ID: "c1", GuildID: "g1", Name: "Practice Room 1", Position: 3,
		PermissionOverwrites: []*discordgo.PermissionOverwrite{
			{ID: "g1", Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionVoiceSpeak},
			o,
		},
	})
	assert.Equal(t, domain.RoomID("c1"), ch.ID)
	assert.Equal(t, 3, ch.Position)
	everyone, ok := ch.OverwriteFor("g1")
	assert.True(t, ok)
	assert.Equal(t, domain.OverwriteRole, everyone.Kind)
	assert.True(t, everyone.Deny.Has(domain.PermSpeak))
	member, ok := ch.OverwriteFor("u1")
	assert.True(t, ok)
	assert.Equal(t, domain.OverwriteMember, member.Kind)
}

func TestMemberFrom(t *testing.T) {
	vs := &discordgo.VoiceState{UserID: "u1", ChannelID: "c1", SelfMute: true}
	m := memberFrom(vs, &discordgo.Member{
		Nick:  "Clara",
		Roles: []string{"r1"},
		User:  &discordgo.User{ID: "u1", Username: "clara.s"},
	})
	assert.True(t, m.Present)
	assert.True(t, m.Muted)
	assert.Equal(t, "Clara", m.DisplayName)
	assert.True(t, m.HasRole("r1"))

	bot := memberFrom(&discordgo.VoiceState{UserID: "b1", ChannelID: "c1", Mute: true}, &discordgo.Member{User: &discordgo.User{ID: "b1", Username: "recorder", Bot: true}})
	assert.True(t, bot.Bot)
	assert.True(t, bot.Muted)
	assert.Equal(t, "recorder", bot.DisplayName)

	gone := memberFrom(&discordgo.VoiceState{UserID: "u2", ChannelID: "c1"}, nil)
	assert.False(t, gone.Present)
	assert.Equal(t, "u2", gone.DisplayName)

	cached := memberFrom(&discordgo.VoiceState{UserID: "u3", ChannelID: "c1", Member: &discordgo.Member{Nick: "Theo"}}, nil)
	assert.False(t, cached.Present)
	assert.Equal(t, "Theo", cached.DisplayName)
}

func TestChangeFrom(t *testing.T) {
	e := &discordgo.VoiceStateUpdate{
		VoiceState:   &discordgo.VoiceState{GuildID: "g1", UserID: "u1", ChannelID: "c2"},
		BeforeUpdate: &discordgo.VoiceState{GuildID: "g1", UserID: "u1", ChannelID: "c1"},
	}
	ch, ok := changeFrom("g1", e)
	assert.True(t, ok)
	assert.Equal(t, domain.RoomID("c1"), ch.Before)
	assert.Equal(t, domain.RoomID("c2"), ch.After)

	_, ok = changeFrom("other", e)
	assert.False(t, ok)

	joined, ok := changeFrom("g1", &discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{GuildID: "g1", UserID: "u1", ChannelID: "c1"}})
	assert.True(t, ok)
	assert.Empty(t, joined.Before)
}
