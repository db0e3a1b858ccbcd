// Package discord backs the core collaborators with a discordgo session.
// Reads come from the session's state cache; writes go to the REST API.
package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/dkeye/practicerooms/internal/core"
	"github.com/dkeye/practicerooms/internal/domain"
	"github.com/rs/zerolog/log"
)

const messageScan = 100

type Platform struct {
	s           *discordgo.Session
	guild       string
	infoChannel string
	ready       chan struct{}
}

// Open connects a bot session for guild. Status messages go to infoChannel.
func Open(token, guild, infoChannel string) (*Platform, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages
	s.StateEnabled = true
	s.State.TrackVoice = true
	s.State.TrackChannels = true
	s.State.TrackMembers = true
	s.State.TrackRoles = true

	p := &Platform{s: s, guild: guild, infoChannel: infoChannel, ready: make(chan struct{})}
	var once sync.Once
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildCreate) {
		if e.ID == guild {
			once.Do(func() { close(p.ready) })
		}
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.Ready) {
		log.Info().Str("module", "adapters.discord").Str("user", e.User.Username).Int("guilds", len(e.Guilds)).Msg("gateway ready")
	})
	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("discord open: %w", err)
	}
	return p, nil
}

// WaitReady blocks until the guild is in the state cache.
func (p *Platform) WaitReady(ctx context.Context) error {
	select {
	case <-p.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Platform) Close() error { return p.s.Close() }

func (p *Platform) GuildID() domain.GuildID { return domain.GuildID(p.guild) }

// --- core.MembershipProvider ---

func (p *Platform) Channel(_ context.Context, id domain.RoomID) (domain.Channel, bool, error) {
	ch, err := p.s.State.Channel(string(id))
	if errors.Is(err, discordgo.ErrStateNotFound) {
		return domain.Channel{}, false, nil
	}
	if err != nil {
		return domain.Channel{}, false, fmt.Errorf("channel %s: %w", id, err)
	}
	if ch.GuildID != p.guild {
		return domain.Channel{}, false, nil
	}
	p.s.State.RLock()
	defer p.s.State.RUnlock()
	return channelFrom(ch), true, nil
}

func (p *Platform) Members(_ context.Context, id domain.RoomID) ([]domain.Member, error) {
	g, err := p.s.State.Guild(p.guild)
	if err != nil {
		return nil, fmt.Errorf("guild %s: %w", p.guild, err)
	}
	p.s.State.RLock()
	states := make([]discordgo.VoiceState, 0, len(g.VoiceStates))
	for _, vs := range g.VoiceStates {
		if vs.ChannelID == string(id) {
			states = append(states, *vs)
		}
	}
	p.s.State.RUnlock()

	out := make([]domain.Member, 0, len(states))
	for i := range states {
		out = append(out, p.member(&states[i]))
	}
	return out, nil
}

func (p *Platform) RoomOf(_ context.Context, user domain.UserID) (domain.Member, bool, error) {
	vs, err := p.s.State.VoiceState(p.guild, string(user))
	if errors.Is(err, discordgo.ErrStateNotFound) {
		return domain.Member{}, false, nil
	}
	if err != nil {
		return domain.Member{}, false, fmt.Errorf("voice state %s: %w", user, err)
	}
	p.s.State.RLock()
	state := *vs
	p.s.State.RUnlock()
	if state.ChannelID == "" {
		return domain.Member{}, false, nil
	}
	return p.member(&state), true, nil
}

// member resolves a voice state into a snapshot entry. A voice state whose
// member is no longer in the guild comes back stale.
func (p *Platform) member(vs *discordgo.VoiceState) domain.Member {
	m, err := p.s.State.Member(p.guild, vs.UserID)
	if err != nil {
		m = nil
	}
	return memberFrom(vs, m)
}

// --- core.PermissionOperator ---

func (p *Platform) Overwrite(ctx context.Context, room domain.RoomID, ow domain.Overwrite) error {
	o := overwriteTo(ow)
	if err := p.s.ChannelPermissionSet(string(room), o.ID, o.Type, o.Allow, o.Deny, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("overwrite %s on %s: %w", ow.TargetID, room, err)
	}
	return nil
}

func (p *Platform) ReplaceOverwrites(ctx context.Context, room domain.RoomID, ows []domain.Overwrite) error {
	list := make([]*discordgo.PermissionOverwrite, 0, len(ows))
	for _, ow := range ows {
		list = append(list, overwriteTo(ow))
	}
	if _, err := p.s.ChannelEdit(string(room), &discordgo.ChannelEdit{PermissionOverwrites: list}, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("replace overwrites on %s: %w", room, err)
	}
	return nil
}

func (p *Platform) SetMute(ctx context.Context, user domain.UserID, muted bool) error {
	if err := p.s.GuildMemberMute(p.guild, string(user), muted, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("mute %s=%t: %w", user, muted, err)
	}
	return nil
}

func (p *Platform) Rename(ctx context.Context, room domain.RoomID, name string) error {
	if _, err := p.s.ChannelEdit(string(room), &discordgo.ChannelEdit{Name: name}, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("rename %s: %w", room, err)
	}
	return nil
}

// --- core.RoleDirectory ---

func (p *Platform) RoleID(_ context.Context, name string) (domain.RoleID, bool) {
	g, err := p.s.State.Guild(p.guild)
	if err != nil {
		return "", false
	}
	p.s.State.RLock()
	defer p.s.State.RUnlock()
	for _, r := range g.Roles {
		if r.Name == name {
			return domain.RoleID(r.ID), true
		}
	}
	return "", false
}

func (p *Platform) EveryoneRoleID() domain.RoleID { return domain.RoleID(p.guild) }

// --- core.Messenger ---

func (p *Platform) Send(ctx context.Context, content string) (core.Message, error) {
	m, err := p.s.ChannelMessageSend(p.infoChannel, content, discordgo.WithContext(ctx))
	if err != nil {
		return core.Message{}, fmt.Errorf("send message: %w", err)
	}
	return core.Message{ID: m.ID, Content: m.Content}, nil
}

func (p *Platform) Edit(ctx context.Context, id, content string) (core.Message, error) {
	m, err := p.s.ChannelMessageEdit(p.infoChannel, id, content, discordgo.WithContext(ctx))
	if err != nil {
		return core.Message{}, fmt.Errorf("edit message %s: %w", id, err)
	}
	return core.Message{ID: m.ID, Content: m.Content}, nil
}

// Find scans the most recent messages of the information channel.
func (p *Platform) Find(ctx context.Context, match func(core.Message) bool) (core.Message, bool, error) {
	msgs, err := p.s.ChannelMessages(p.infoChannel, messageScan, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return core.Message{}, false, fmt.Errorf("list messages: %w", err)
	}
	for _, m := range msgs {
		cm := core.Message{ID: m.ID, Content: m.Content}
		if match(cm) {
			return cm, true, nil
		}
	}
	return core.Message{}, false, nil
}

func (p *Platform) Delete(ctx context.Context, id string) error {
	if err := p.s.ChannelMessageDelete(p.infoChannel, id, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("delete message %s: %w", id, err)
	}
	return nil
}
