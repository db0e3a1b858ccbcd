// Package orch runs one guild's practice rooms on a single event loop.
// Platform events, timer callbacks and admin calls are all turned into jobs on
// that loop, so room state is never touched concurrently.
package orch

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/practicerooms/internal/app"
	"github.com/dkeye/practicerooms/internal/core"
	"github.com/dkeye/practicerooms/internal/domain"
	"github.com/dkeye/practicerooms/internal/store"
	"github.com/rs/zerolog/log"
)

var (
	ErrStopped     = errors.New("orchestrator stopped")
	ErrUnknownRoom = errors.New("room does not exist")
	ErrUnmanaged   = errors.New("room is not a practice room")
	ErrNotInRoom   = errors.New("user is not in the room")
	ErrNotLocked   = errors.New("room is not locked")
)

const eventBuffer = 64

// Platform bundles the collaborators the voice platform provides.
type Platform interface {
	core.MembershipProvider
	core.PermissionOperator
	core.RoleDirectory
	core.Messenger
}

type Options struct {
	Guild    domain.GuildID
	Platform Platform
	Store    store.Repository
	Clock    core.Clock
	Policy   app.Policy
	// NoticeTTL is how long restart progress messages stay up.
	NoticeTTL time.Duration
}

type Orchestrator struct {
	guild     domain.GuildID
	platform  Platform
	store     store.Repository
	clock     core.Clock
	policy    app.Policy
	noticeTTL time.Duration

	Registry   *app.Registry
	Engine     *app.Engine
	Operator   *app.Operator
	Accountant *app.Accountant

	// owned by the loop
	config    domain.GuildConfig
	nextReset time.Time

	feed   *Feed
	events chan func(ctx context.Context)
	done   chan struct{}
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		guild:     opts.Guild,
		platform:  opts.Platform,
		store:     opts.Store,
		clock:     opts.Clock,
		policy:    opts.Policy,
		noticeTTL: opts.NoticeTTL,
		Registry:  app.NewRegistry(),
		feed:      NewFeed(),
		events:    make(chan func(ctx context.Context), eventBuffer),
		done:      make(chan struct{}),
	}
	o.Operator = app.NewOperator(opts.Platform, opts.Platform, opts.Platform, opts.Policy)
	o.Engine = app.NewEngine(opts.Clock, opts.Platform, o.Operator, opts.Policy, o.Submit)
	o.Engine.AfterLock = func(ctx context.Context, e *app.RoomEntry) {
		o.reconcileRoom(ctx, e)
		o.publish(ctx)
	}
	o.Accountant = app.NewAccountant(opts.Clock, opts.Store)
	o.nextReset = EndOfWeek(opts.Clock.Now())
	return o
}

func (o *Orchestrator) Feed() *Feed { return o.feed }

// Run executes queued jobs until ctx is canceled.
func (o *Orchestrator) Run(ctx context.Context) {
	defer close(o.done)
	log.Info().Str("module", "orch").Str("guild", string(o.guild)).Msg("event loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "orch").Str("guild", string(o.guild)).Msg("event loop stopped")
			return
		case f := <-o.events:
			f(ctx)
		}
	}
}

// Submit queues f on the loop without waiting for it. It is the dispatcher
// timer callbacks go through.
func (o *Orchestrator) Submit(f func(ctx context.Context)) {
	select {
	case o.events <- f:
	case <-o.done:
	}
}

// Do runs f on the loop and waits for its result. It must not be called from
// inside a job.
func (o *Orchestrator) Do(ctx context.Context, f func(ctx context.Context) error) error {
	errc := make(chan error, 1)
	job := func(loopCtx context.Context) { errc <- f(loopCtx) }
	select {
	case o.events <- job:
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) managed(id domain.RoomID) bool {
	return id != "" && o.config.Permits(id)
}

// entry returns the registry entry of a managed room that still exists on the
// platform, refreshing its name and position.
func (o *Orchestrator) entry(ctx context.Context, id domain.RoomID) (*app.RoomEntry, bool) {
	if !o.managed(id) {
		return nil, false
	}
	ch, ok, err := o.platform.Channel(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room", string(id)).Msg("read channel")
		if e, ok := o.Registry.Get(id); ok {
			return e, true
		}
		return nil, false
	}
	if !ok {
		o.Registry.Remove(id)
		return nil, false
	}
	return o.Registry.Ensure(ch, o.policy.SpawnTemplate), true
}

func (o *Orchestrator) evaluate(ctx context.Context, e *app.RoomEntry) app.Action {
	members, err := o.platform.Members(ctx, e.Room.ID)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(e.Room.ID)).Msg("evaluate: read members")
		return app.ActionIdle
	}
	return o.Engine.Evaluate(e, members)
}

// reconcile opens or closes m's session so it matches whether m is live.
func (o *Orchestrator) reconcile(ctx context.Context, m domain.Member, room *domain.Room) {
	live := app.IsLive(m, room)
	active := o.Accountant.Active(m.UserID)
	switch {
	case live && !active:
		o.Accountant.Begin(m.UserID)
	case !live && active:
		if _, err := o.Accountant.End(ctx, m.UserID); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("user", string(m.UserID)).Msg("end session")
		}
	}
}

func (o *Orchestrator) reconcileUser(ctx context.Context, user domain.UserID) {
	m, ok, err := o.platform.RoomOf(ctx, user)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("user", string(user)).Msg("reconcile: read voice state")
		return
	}
	var room *domain.Room
	if ok {
		if e, found := o.Registry.Get(m.RoomID); found && o.managed(m.RoomID) {
			room = e.Room
		}
	} else {
		m = domain.Member{UserID: user}
	}
	o.reconcile(ctx, m, room)
}

func (o *Orchestrator) reconcileRoom(ctx context.Context, e *app.RoomEntry) {
	members, err := o.platform.Members(ctx, e.Room.ID)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room", string(e.Room.ID)).Msg("reconcile: read members")
		return
	}
	for _, m := range domain.PresentMembers(members) {
		o.reconcile(ctx, m, e.Room)
	}
}
