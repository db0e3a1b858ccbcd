package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/dkeye/practicerooms/internal/app/orch"
	"github.com/dkeye/practicerooms/internal/domain"
	"github.com/rs/zerolog/log"
)

// VoiceHandler consumes voice state changes.
type VoiceHandler interface {
	OnVoiceState(ctx context.Context, ch orch.VoiceChange) error
}

// changeFrom maps a gateway update to a change. ok is false for other guilds.
func changeFrom(guild string, e *discordgo.VoiceStateUpdate) (orch.VoiceChange, bool) {
	if e.VoiceState == nil || e.GuildID != guild {
		return orch.VoiceChange{}, false
	}
	ch := orch.VoiceChange{UserID: domain.UserID(e.UserID), After: domain.RoomID(e.ChannelID)}
	if e.BeforeUpdate != nil {
		ch.Before = domain.RoomID(e.BeforeUpdate.ChannelID)
	}
	return ch, true
}

// Bind forwards voice updates for the platform's guild to h until the
// returned func is called.
func (p *Platform) Bind(ctx context.Context, h VoiceHandler) func() {
	return p.s.AddHandler(func(_ *discordgo.Session, e *discordgo.VoiceStateUpdate) {
		ch, ok := changeFrom(p.guild, e)
		if !ok {
			return
		}
		if err := h.OnVoiceState(ctx, ch); err != nil {
			log.Warn().Err(err).Str("module", "adapters.discord").Str("user", string(ch.UserID)).Msg("voice update dropped")
		}
	})
}
