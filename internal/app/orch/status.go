package orch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/practicerooms/internal/core"
	"github.com/dustin/go-humanize/english"
	"github.com/rs/zerolog/log"
)

const (
	statusTitle   = "**Practice Rooms**"
	lowBitrateTag = " (64kbps)"
)

type MemberView struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Muted       bool   `json:"muted"`
	Stale       bool   `json:"stale"`
	Live        bool   `json:"live"`
}

type RoomView struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Temp             bool         `json:"temp"`
	LockedBy         string       `json:"locked_by,omitempty"`
	Candidate        string       `json:"candidate,omitempty"`
	Suppressed       bool         `json:"suppressed"`
	PromotionPending bool         `json:"promotion_pending"`
	Members          []MemberView `json:"members"`
}

func (r RoomView) occupied() bool {
	for _, m := range r.Members {
		if !m.Stale {
			return true
		}
	}
	return false
}

// Snapshot returns every managed room ordered by position.
func (o *Orchestrator) Snapshot(ctx context.Context) ([]RoomView, error) {
	var out []RoomView
	err := o.Do(ctx, func(ctx context.Context) error {
		out = o.snapshot(ctx)
		return nil
	})
	return out, err
}

func (o *Orchestrator) snapshot(ctx context.Context) []RoomView {
	out := []RoomView{}
	for _, e := range o.Registry.List() {
		if !o.managed(e.Room.ID) {
			continue
		}
		r := e.Room
		v := RoomView{
			ID:               string(r.ID),
			Name:             r.DisplayName(),
			Temp:             r.IsTempRoom,
			LockedBy:         string(r.LockedBy),
			Candidate:        string(r.OccupantCandidate),
			Suppressed:       r.SuppressAutolock,
			PromotionPending: e.PromotionPending(),
			Members:          []MemberView{},
		}
		members, err := o.platform.Members(ctx, r.ID)
		if err != nil {
			log.Debug().Err(err).Str("module", "orch").Str("room", string(r.ID)).Msg("snapshot: read members")
		}
		for _, m := range members {
			v.Members = append(v.Members, MemberView{
				UserID:      string(m.UserID),
				DisplayName: m.DisplayName,
				Muted:       m.Muted,
				Stale:       !m.Present,
				Live:        o.Accountant.Active(m.UserID),
			})
		}
		out = append(out, v)
	}
	return out
}

// RenderStatus formats the status board for occupied rooms.
func RenderStatus(rooms []RoomView, now, reset time.Time) string {
	var b strings.Builder
	b.WriteString(statusTitle)
	for _, r := range rooms {
		if !r.occupied() {
			continue
		}
		fmt.Fprintf(&b, "\n\n%s", strings.Replace(r.Name, lowBitrateTag, "", 1))
		if r.LockedBy != "" {
			fmt.Fprintf(&b, " | LOCKED by <@%s>", r.LockedBy)
		}
		for _, m := range r.Members {
			fmt.Fprintf(&b, "\n<@%s>", m.UserID)
			if m.Stale {
				b.WriteString(" :ghost:")
			}
			if m.Live {
				b.WriteString(" :microphone2:")
			}
		}
	}
	fmt.Fprintf(&b, "\n\nWeekly leaderboard resets in %s", spellDuration(reset.Sub(now)))
	return b.String()
}

var durationUnits = []struct {
	size time.Duration
	name string
}{
	{24 * time.Hour, "day"},
	{time.Hour, "hour"},
	{time.Minute, "minute"},
}

// spellDuration writes d in days, hours and whole minutes, skipping zero units.
func spellDuration(d time.Duration) string {
	var parts []string
	for _, u := range durationUnits {
		n := int(d / u.size)
		d -= time.Duration(n) * u.size
		if n > 0 {
			parts = append(parts, english.Plural(n, u.name, ""))
		}
	}
	if len(parts) == 0 {
		return english.Plural(0, "minute", "")
	}
	return strings.Join(parts, ", ")
}

// EndOfWeek is the start of the Monday following t, in t's location.
func EndOfWeek(t time.Time) time.Time {
	days := (8 - int(t.Weekday())) % 7
	if days == 0 {
		days = 7
	}
	y, m, d := t.Date()
	return time.Date(y, m, d+days, 0, 0, 0, 0, t.Location())
}

// RefreshStatus edits the status board in place, or posts it if missing. It
// also rolls the weekly period over once its end has passed.
func (o *Orchestrator) RefreshStatus(ctx context.Context) error {
	return o.Do(ctx, o.refreshStatus)
}

func (o *Orchestrator) refreshStatus(ctx context.Context) error {
	now := o.clock.Now()
	if !now.Before(o.nextReset) {
		if err := o.resetPeriod(ctx); err != nil {
			log.Error().Err(err).Str("module", "orch").Msg("weekly reset")
		}
	}
	content := RenderStatus(o.snapshot(ctx), now, o.nextReset)

	msg, ok, err := o.platform.Find(ctx, func(m core.Message) bool {
		return strings.HasPrefix(m.Content, statusTitle)
	})
	if err != nil {
		return fmt.Errorf("find status board: %w", err)
	}
	if ok {
		if msg.Content == content {
			return nil
		}
		_, err = o.platform.Edit(ctx, msg.ID, content)
	} else {
		_, err = o.platform.Send(ctx, content)
	}
	if err != nil {
		return fmt.Errorf("post status board: %w", err)
	}
	return nil
}

// StatusLoop refreshes the status board every interval until ctx ends.
func (o *Orchestrator) StatusLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.RefreshStatus(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrStopped) {
				log.Warn().Err(err).Str("module", "orch").Msg("refresh status")
			}
		}
	}
}

func (o *Orchestrator) publish(ctx context.Context) {
	if o.feed.Len() == 0 {
		return
	}
	o.feed.Publish(o.snapshot(ctx))
}

// Feed fans room snapshots out to subscribers. Each subscriber only ever
// holds the latest snapshot; older ones are dropped.
type Feed struct {
	mu   sync.Mutex
	subs map[chan []RoomView]struct{}
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[chan []RoomView]struct{})}
}

func (f *Feed) Subscribe() (<-chan []RoomView, func()) {
	ch := make(chan []RoomView, 1)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subs[ch]; ok {
			delete(f.subs, ch)
			close(ch)
		}
	}
}

func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *Feed) Publish(rooms []RoomView) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case <-ch:
		default:
		}
		ch <- rooms
	}
}

