// Package memory is an in-process voice platform. It backs local runs with
// simulated voice traffic and the tests of the packages above it.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/dkeye/practicerooms/internal/core"
	"github.com/dkeye/practicerooms/internal/domain"
)

var (
	ErrUnknownRoom = errors.New("unknown room")
	ErrNotInVoice  = errors.New("member not in voice")
)

type voiceState struct {
	member      domain.Member
	selfMuted   bool
	serverMuted bool
}

// Platform implements core.MembershipProvider, core.PermissionOperator,
// core.RoleDirectory and core.Messenger over plain maps.
type Platform struct {
	mu       sync.Mutex
	guild    domain.GuildID
	channels map[domain.RoomID]*domain.Channel
	voice    map[domain.UserID]*voiceState
	stale    map[domain.RoomID][]domain.Member
	roles    map[string]domain.RoleID
	messages []core.Message
	nextMsg  int

	// failures injected by tests, keyed by user or room id
	muteErr   map[domain.UserID]error
	renameErr map[domain.RoomID]error

	calls []string
}

func NewPlatform(guild domain.GuildID) *Platform {
	return &Platform{
		guild:     guild,
		channels:  make(map[domain.RoomID]*domain.Channel),
		voice:     make(map[domain.UserID]*voiceState),
		stale:     make(map[domain.RoomID][]domain.Member),
		roles:     make(map[string]domain.RoleID),
		muteErr:   make(map[domain.UserID]error),
		renameErr: make(map[domain.RoomID]error),
	}
}

// --- simulation ---

func (p *Platform) AddChannel(id domain.RoomID, name string, position int, overwrites ...domain.Overwrite) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[id] = &domain.Channel{ID: id, GuildID: p.guild, Name: name, Position: position, Overwrites: overwrites}
}

func (p *Platform) RemoveChannel(id domain.RoomID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.channels, id)
}

func (p *Platform) AddRole(name string, id domain.RoleID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.roles[name] = id
}

// Join moves user into room, keeping their mute flags. It returns the room
// they were in before.
func (p *Platform) Join(user domain.UserID, displayName string, room domain.RoomID, roles ...domain.RoleID) domain.RoomID {
	p.mu.Lock()
	defer p.mu.Unlock()
	vs, ok := p.voice[user]
	if !ok {
		vs = &voiceState{member: domain.Member{UserID: user, DisplayName: displayName, Present: true, Roles: roles}}
		p.voice[user] = vs
	}
	before := vs.member.RoomID
	vs.member.RoomID = room
	return before
}

// Leave disconnects user from voice and returns the room they left.
func (p *Platform) Leave(user domain.UserID) domain.RoomID {
	p.mu.Lock()
	defer p.mu.Unlock()
	vs, ok := p.voice[user]
	if !ok {
		return ""
	}
	delete(p.voice, user)
	return vs.member.RoomID
}

// SelfMute toggles the user's own mute.
func (p *Platform) SelfMute(user domain.UserID, muted bool) domain.RoomID {
	p.mu.Lock()
	defer p.mu.Unlock()
	vs, ok := p.voice[user]
	if !ok {
		return ""
	}
	vs.selfMuted = muted
	return vs.member.RoomID
}

func (p *Platform) SetBot(user domain.UserID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if vs, ok := p.voice[user]; ok {
		vs.member.Bot = true
	}
}

// AddStale appends a departed member that still shows up in room snapshots.
func (p *Platform) AddStale(room domain.RoomID, user domain.UserID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stale[room] = append(p.stale[room], domain.Member{UserID: user, RoomID: room})
}

func (p *Platform) FailMute(user domain.UserID, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muteErr[user] = err
}

func (p *Platform) FailRename(room domain.RoomID, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.renameErr[room] = err
}

// ServerMuted reports whether the platform has user server-muted.
func (p *Platform) ServerMuted(user domain.UserID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	vs, ok := p.voice[user]
	return ok && vs.serverMuted
}

// ChannelState returns a copy of a channel.
func (p *Platform) ChannelState(id domain.RoomID) domain.Channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[id]
	if !ok {
		return domain.Channel{}
	}
	out := *ch
	out.Overwrites = slices.Clone(ch.Overwrites)
	return out
}

// Messages returns the info channel history, oldest first.
func (p *Platform) Messages() []core.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.messages)
}

// Calls returns the log of mutating calls.
func (p *Platform) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}

func (p *Platform) memberLocked(vs *voiceState) domain.Member {
	m := vs.member
	m.Muted = vs.selfMuted || vs.serverMuted
	return m
}

// --- core.MembershipProvider ---

func (p *Platform) Channel(_ context.Context, id domain.RoomID) (domain.Channel, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[id]
	if !ok {
		return domain.Channel{}, false, nil
	}
	out := *ch
	out.Overwrites = slices.Clone(ch.Overwrites)
	return out, true, nil
}

func (p *Platform) Members(_ context.Context, id domain.RoomID) ([]domain.Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.channels[id]; !ok {
		return nil, fmt.Errorf("members of %s: %w", id, ErrUnknownRoom)
	}
	var out []domain.Member
	for _, vs := range p.voice {
		if vs.member.RoomID == id {
			out = append(out, p.memberLocked(vs))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	out = append(out, p.stale[id]...)
	return out, nil
}

func (p *Platform) RoomOf(_ context.Context, user domain.UserID) (domain.Member, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	vs, ok := p.voice[user]
	if !ok || vs.member.RoomID == "" {
		return domain.Member{}, false, nil
	}
	return p.memberLocked(vs), true, nil
}

// --- core.PermissionOperator ---

func (p *Platform) Overwrite(_ context.Context, room domain.RoomID, ow domain.Overwrite) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[room]
	if !ok {
		return ErrUnknownRoom
	}
	p.calls = append(p.calls, fmt.Sprintf("overwrite %s %s %s", room, ow.Kind, ow.TargetID))
	for i, o := range ch.Overwrites {
		if o.TargetID == ow.TargetID {
			ch.Overwrites[i] = ow
			return nil
		}
	}
	ch.Overwrites = append(ch.Overwrites, ow)
	return nil
}

func (p *Platform) ReplaceOverwrites(_ context.Context, room domain.RoomID, ows []domain.Overwrite) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[room]
	if !ok {
		return ErrUnknownRoom
	}
	p.calls = append(p.calls, fmt.Sprintf("replace %s %d", room, len(ows)))
	ch.Overwrites = slices.Clone(ows)
	return nil
}

func (p *Platform) SetMute(_ context.Context, user domain.UserID, muted bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, fmt.Sprintf("mute %s %t", user, muted))
	if err := p.muteErr[user]; err != nil {
		return err
	}
	vs, ok := p.voice[user]
	if !ok {
		return ErrNotInVoice
	}
	vs.serverMuted = muted
	return nil
}

func (p *Platform) Rename(_ context.Context, room domain.RoomID, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, fmt.Sprintf("rename %s %s", room, name))
	if err := p.renameErr[room]; err != nil {
		return err
	}
	ch, ok := p.channels[room]
	if !ok {
		return ErrUnknownRoom
	}
	ch.Name = name
	return nil
}

// --- core.RoleDirectory ---

func (p *Platform) RoleID(_ context.Context, name string) (domain.RoleID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.roles[name]
	return id, ok
}

// EveryoneRoleID follows the platform convention that @everyone shares the
// guild's id.
func (p *Platform) EveryoneRoleID() domain.RoleID { return domain.RoleID(p.guild) }

// --- core.Messenger ---

func (p *Platform) Send(_ context.Context, content string) (core.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextMsg++
	m := core.Message{ID: strconv.Itoa(p.nextMsg), Content: content}
	p.messages = append(p.messages, m)
	return m, nil
}

func (p *Platform) Edit(_ context.Context, id, content string) (core.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.messages {
		if p.messages[i].ID == id {
			p.messages[i].Content = content
			return p.messages[i], nil
		}
	}
	return core.Message{}, fmt.Errorf("edit message %s: not found", id)
}

func (p *Platform) Find(_ context.Context, match func(core.Message) bool) (core.Message, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.messages) - 1; i >= 0; i-- {
		if match(p.messages[i]) {
			return p.messages[i], true, nil
		}
	}
	return core.Message{}, false, nil
}

func (p *Platform) Delete(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.messages {
		if p.messages[i].ID == id {
			p.messages = append(p.messages[:i], p.messages[i+1:]...)
			return nil
		}
	}
	return nil
}
