package app

import (
	"sort"
	"sync"

	"github.com/dkeye/practicerooms/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomEntry pairs a room's lock state with its promotion timer slot.
type RoomEntry struct {
	Room      *domain.Room
	promotion TimerSlot
}

// PromotionPending reports whether an autolock timer is outstanding.
func (e *RoomEntry) PromotionPending() bool { return e.promotion.Pending() }

// Registry is the owned store of managed rooms, keyed by room id.
// Room fields are only mutated on the orchestrator's event loop; the mutex
// guards the map itself.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*RoomEntry
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[domain.RoomID]*RoomEntry)}
}

// Ensure returns the entry for ch, creating it on first sight. Channel name
// and position are refreshed on every call except while a temp room is locked,
// since its live name is then the holder's possessive.
func (r *Registry) Ensure(ch domain.Channel, spawnTemplate string) *RoomEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rooms[ch.ID]
	if !ok {
		e = &RoomEntry{Room: &domain.Room{
			ID:         ch.ID,
			GuildID:    ch.GuildID,
			Name:       ch.Name,
			Position:   ch.Position,
			IsTempRoom: spawnTemplate != "" && ch.Name == spawnTemplate,
		}}
		r.rooms[ch.ID] = e
		log.Info().Str("module", "app.registry").Str("room", string(ch.ID)).Str("name", ch.Name).Bool("temp", e.Room.IsTempRoom).Msg("room registered")
		return e
	}
	e.Room.Position = ch.Position
	if !(e.Room.IsTempRoom && e.Room.Locked()) {
		e.Room.Name = ch.Name
	}
	return e
}

func (r *Registry) Get(id domain.RoomID) (*RoomEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.rooms[id]
	return e, ok
}

// Remove forgets a room and cancels its pending promotion.
func (r *Registry) Remove(id domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.rooms[id]; ok {
		e.promotion.Cancel()
		delete(r.rooms, id)
		log.Info().Str("module", "app.registry").Str("room", string(id)).Msg("room removed")
	}
}

// Reset drops every room and cancels every timer.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.rooms {
		e.promotion.Cancel()
		delete(r.rooms, id)
	}
}

// List returns all entries ordered by channel position, then id.
func (r *Registry) List() []*RoomEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*RoomEntry, 0, len(r.rooms))
	for _, e := range r.rooms {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Room.Position != out[j].Room.Position {
			return out[i].Room.Position < out[j].Room.Position
		}
		return out[i].Room.ID < out[j].Room.ID
	})
	return out
}
