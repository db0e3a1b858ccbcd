package orch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dkeye/practicerooms/internal/app"
	"github.com/dkeye/practicerooms/internal/core"
	"github.com/dkeye/practicerooms/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const restartNotice = "Beginning restart procedure..."

// notice is a progress message in the information channel. A zero notice
// swallows every update.
type notice struct {
	o      *Orchestrator
	msg    core.Message
	ok     bool
	logger zerolog.Logger
}

func (n *notice) append(ctx context.Context, text string) {
	if !n.ok {
		return
	}
	m, err := n.o.platform.Edit(ctx, n.msg.ID, n.msg.Content+text)
	if err != nil {
		n.logger.Warn().Err(err).Msg("edit progress message")
		return
	}
	n.msg = m
}

// expire deletes the message once ttl has passed.
func (n *notice) expire(ttl time.Duration) {
	if !n.ok || ttl <= 0 {
		return
	}
	id := n.msg.ID
	n.o.clock.AfterFunc(ttl, func() {
		n.o.Submit(func(ctx context.Context) {
			if err := n.o.platform.Delete(ctx, id); err != nil {
				n.logger.Warn().Err(err).Msg("delete progress message")
			}
		})
	})
}

// Resume rebuilds room lock state and sessions from what the platform shows.
// Nothing about locks is persisted; permission overwrites are the record.
func (o *Orchestrator) Resume(ctx context.Context) error {
	return o.Do(ctx, o.resume)
}

func (o *Orchestrator) resume(ctx context.Context) error {
	logger := log.With().Str("module", "orch").Str("run", uuid.NewString()).Logger()
	logger.Info().Str("guild", string(o.guild)).Msg("resuming")

	n := &notice{o: o, logger: logger}
	if m, ok, err := o.platform.Find(ctx, func(m core.Message) bool {
		return strings.HasPrefix(m.Content, restartNotice)
	}); err != nil {
		logger.Warn().Err(err).Msg("look up restart notice")
	} else if ok {
		n.msg, n.ok = m, true
	}
	n.append(ctx, " ready.\nDetecting room status...")

	o.Registry.Reset()
	o.Accountant.Reset()
	cfg, err := o.store.LoadGuild(ctx, o.guild)
	if err != nil {
		return fmt.Errorf("load guild %s: %w", o.guild, err)
	}
	if cfg == nil {
		cfg = &domain.GuildConfig{GuildID: o.guild}
	}
	o.config = domain.GuildConfig{GuildID: o.guild, PermittedRooms: slices.Clone(cfg.PermittedRooms)}

	everyone := o.platform.EveryoneRoleID()
	for _, id := range o.config.PermittedRooms {
		ch, ok, err := o.platform.Channel(ctx, id)
		if err != nil {
			logger.Warn().Err(err).Str("room", string(id)).Msg("read channel")
			continue
		}
		if !ok {
			logger.Info().Str("room", string(id)).Msg("permitted room no longer exists")
			continue
		}
		e := o.Registry.Ensure(ch, o.policy.SpawnTemplate)
		members, err := o.platform.Members(ctx, id)
		if err != nil {
			logger.Warn().Err(err).Str("room", string(id)).Msg("read members")
			continue
		}
		present := domain.PresentMembers(members)

		if e.Room.IsTempRoom {
			// a lone player in a fresh temp room was holding it before the restart
			if unmuted := domain.UnmutedMembers(present); len(unmuted) == 1 {
				if err := o.Operator.Lock(ctx, e, unmuted[0]); err != nil {
					logger.Error().Err(err).Str("room", string(id)).Msg("relock temp room")
				}
				app.CountLock("recovery")
			}
			continue
		}

		if holder, ok := lockHolder(ch, everyone, present); ok {
			e.Room.LockedBy = holder
			logger.Info().Str("room", string(id)).Str("user", string(holder)).Msg("detected locked room")
			continue
		}
		if err := o.Operator.Unlock(ctx, e); err != nil {
			logger.Error().Err(err).Str("room", string(id)).Msg("reset room")
		}
	}
	n.append(ctx, " marked locked rooms.\nResuming active sessions...")

	rooms := o.Registry.List()
	for _, e := range rooms {
		o.reconcileRoom(ctx, e)
	}
	for _, e := range rooms {
		o.evaluate(ctx, e)
	}

	n.append(ctx, " resumed.\nRestart procedure completed.")
	n.expire(o.noticeTTL)
	logger.Info().Int("rooms", len(rooms)).Msg("resumed")
	o.publish(ctx)
	return nil
}

// lockHolder reads the lock off a channel's overwrites: @everyone is denied
// Speak and a member overwrite allowing Speak belongs to someone in the room.
func lockHolder(ch domain.Channel, everyone domain.RoleID, present []domain.Member) (domain.UserID, bool) {
	ow, ok := ch.OverwriteFor(string(everyone))
	if !ok || !ow.Deny.Has(domain.PermSpeak) {
		return "", false
	}
	for _, ow := range ch.Overwrites {
		if ow.Kind != domain.OverwriteMember || !ow.Allow.Has(domain.PermSpeak) {
			continue
		}
		if _, ok := domain.FindMember(present, domain.UserID(ow.TargetID)); ok {
			return domain.UserID(ow.TargetID), true
		}
	}
	return "", false
}

// Restart saves every running session and unlocks temp rooms so the next
// process can recognize them by name. The caller exits afterwards.
func (o *Orchestrator) Restart(ctx context.Context) error {
	return o.Do(ctx, o.restart)
}

func (o *Orchestrator) restart(ctx context.Context) error {
	logger := log.With().Str("module", "orch").Str("run", uuid.NewString()).Logger()
	logger.Info().Str("guild", string(o.guild)).Msg("restarting")

	n := &notice{o: o, logger: logger}
	if m, err := o.platform.Send(ctx, restartNotice); err != nil {
		logger.Warn().Err(err).Msg("send restart notice")
	} else {
		n.msg, n.ok = m, true
	}

	n.append(ctx, "\nSaving all active sessions...")
	var errs []error
	if err := o.flushAll(ctx); err != nil {
		errs = append(errs, err)
	}

	n.append(ctx, " saved.\nUnlocking extra rooms...")
	for _, e := range o.Registry.List() {
		if !e.Room.IsTempRoom {
			continue
		}
		if err := o.Operator.Unlock(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("unlock %s: %w", e.Room.ID, err))
		}
	}

	n.append(ctx, " unlocked.\nRestarting...")
	err := errors.Join(errs...)
	if err != nil {
		logger.Error().Err(err).Msg("restart finished with errors")
	}
	return err
}
