package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/practicerooms/internal/core"
	"github.com/dkeye/practicerooms/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

const memberFanOut = 8

// Operator moves rooms between locked and unlocked on the platform and keeps
// the room record in step.
type Operator struct {
	perms   core.PermissionOperator
	members core.MembershipProvider
	roles   core.RoleDirectory
	policy  Policy
}

func NewOperator(perms core.PermissionOperator, members core.MembershipProvider, roles core.RoleDirectory, policy Policy) *Operator {
	return &Operator{perms: perms, members: members, roles: roles, policy: policy}
}

// LockedName is the name a temp room carries while locked to displayName.
func LockedName(displayName string) string {
	return fmt.Sprintf("%s's room", displayName)
}

// Lock gives member exclusive speak rights in the room. Muting the other
// occupants is best effort; only room-level failures are returned.
func (o *Operator) Lock(ctx context.Context, entry *RoomEntry, member domain.Member) error {
	room := entry.Room
	logger := log.With().Str("module", "app.operator").Str("room", string(room.ID)).Str("user", string(member.UserID)).Logger()

	room.LockedBy = member.UserID
	entry.promotion.Cancel()

	var errs []error
	if room.IsTempRoom {
		name := LockedName(member.DisplayName)
		if room.UnlockedName == "" {
			room.UnlockedName = room.Name
		}
		if err := o.perms.Rename(ctx, room.ID, name); err != nil {
			errs = append(errs, fmt.Errorf("rename: %w", err))
		} else {
			room.Name = name
		}
	}

	var current domain.Channel
	if ch, ok, err := o.members.Channel(ctx, room.ID); err != nil {
		logger.Warn().Err(err).Msg("lock: read overwrites")
	} else if ok {
		current = ch
	}
	grant := withSpeak(current, string(member.UserID), domain.OverwriteMember, true)
	if err := o.perms.Overwrite(ctx, room.ID, grant); err != nil {
		errs = append(errs, fmt.Errorf("grant speak: %w", err))
	}
	deny := withSpeak(current, string(o.roles.EveryoneRoleID()), domain.OverwriteRole, false)
	if err := o.perms.Overwrite(ctx, room.ID, deny); err != nil {
		errs = append(errs, fmt.Errorf("deny everyone speak: %w", err))
	}

	members, err := o.members.Members(ctx, room.ID)
	if err != nil {
		logger.Warn().Err(err).Msg("lock: read members, skipping mute")
	} else {
		var others []domain.Member
		for _, m := range domain.PresentMembers(members) {
			if m.UserID != member.UserID {
				others = append(others, m)
			}
		}
		o.setMuteAll(ctx, room.ID, others, true)
	}

	logger.Info().Bool("temp", room.IsTempRoom).Msg("room locked")
	return errors.Join(errs...)
}

// Unlock restores the room to its baseline. Unlocking an occupied room marks
// it suppressed, since that is read as a request not to relock it.
func (o *Operator) Unlock(ctx context.Context, entry *RoomEntry) error {
	room := entry.Room
	logger := log.With().Str("module", "app.operator").Str("room", string(room.ID)).Logger()

	var errs []error
	if room.UnlockedName != "" {
		if err := o.perms.Rename(ctx, room.ID, room.UnlockedName); err != nil {
			errs = append(errs, fmt.Errorf("restore name: %w", err))
		} else {
			room.Name = room.UnlockedName
			room.UnlockedName = ""
		}
	}

	if err := o.perms.ReplaceOverwrites(ctx, room.ID, o.Baseline(ctx)); err != nil {
		errs = append(errs, fmt.Errorf("reset overwrites: %w", err))
	}

	members, err := o.members.Members(ctx, room.ID)
	if err != nil {
		logger.Warn().Err(err).Msg("unlock: read members, skipping unmute")
	}
	present := domain.PresentMembers(members)

	tempMuted, _ := o.roles.RoleID(ctx, o.policy.TempMutedRole)
	var targets []domain.Member
	for _, m := range present {
		if !m.HasRole(tempMuted) {
			targets = append(targets, m)
		}
	}
	o.setMuteAll(ctx, room.ID, targets, false)

	if len(present) != 0 {
		room.SuppressAutolock = true
	}
	prev := room.LockedBy
	room.LockedBy = ""
	entry.promotion.Cancel()

	metricUnlocks.Inc()
	logger.Info().Str("previous", string(prev)).Bool("suppressed", room.SuppressAutolock).Msg("room unlocked")
	return errors.Join(errs...)
}

// withSpeak merges a speak allow or deny into the channel's existing overwrite
// for target. The platform replaces overwrites whole, so the other bits must be
// carried over.
func withSpeak(ch domain.Channel, target string, kind domain.OverwriteKind, allow bool) domain.Overwrite {
	ow, ok := ch.OverwriteFor(target)
	if !ok {
		ow = domain.Overwrite{TargetID: target, Kind: kind}
	}
	if allow {
		ow.Allow |= domain.PermSpeak
		ow.Deny &^= domain.PermSpeak
	} else {
		ow.Deny |= domain.PermSpeak
		ow.Allow &^= domain.PermSpeak
	}
	return ow
}

// Baseline is the full overwrite set of an unlocked room. Roles that do not
// exist in the guild are left out.
func (o *Operator) Baseline(ctx context.Context) []domain.Overwrite {
	var out []domain.Overwrite
	if id, ok := o.roles.RoleID(ctx, o.policy.BotRole); ok {
		out = append(out, domain.Overwrite{TargetID: string(id), Kind: domain.OverwriteRole, Allow: domain.PermManageChannels | domain.PermManageRoles})
	}
	if id, ok := o.roles.RoleID(ctx, o.policy.TempMutedRole); ok {
		out = append(out, domain.Overwrite{TargetID: string(id), Kind: domain.OverwriteRole, Deny: domain.PermSpeak})
	}
	if id, ok := o.roles.RoleID(ctx, o.policy.VerificationRole); ok {
		out = append(out, domain.Overwrite{TargetID: string(id), Kind: domain.OverwriteRole, Deny: domain.PermViewChannel})
	}
	out = append(out, domain.Overwrite{
		TargetID: string(o.roles.EveryoneRoleID()),
		Kind:     domain.OverwriteRole,
		Deny:     domain.PermManageChannels | domain.PermManageRoles,
	})
	return out
}

// setMuteAll fans out one mute call per member. A member who left mid-way
// fails alone; the others still get their call.
func (o *Operator) setMuteAll(ctx context.Context, room domain.RoomID, members []domain.Member, muted bool) {
	if len(members) == 0 {
		return
	}
	op := "unmute"
	if muted {
		op = "mute"
	}
	p := pool.New().WithErrors().WithMaxGoroutines(memberFanOut)
	for _, m := range members {
		m := m
		p.Go(func() error {
			if err := o.perms.SetMute(ctx, m.UserID, muted); err != nil {
				metricMemberOpFailures.WithLabelValues(op).Inc()
				log.Warn().Err(err).Str("module", "app.operator").Str("room", string(room)).Str("user", string(m.UserID)).Str("op", op).Msg("member op failed")
				return err
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		log.Debug().Str("module", "app.operator").Str("room", string(room)).Str("op", op).Msg("fan-out finished with failures")
	}
}
