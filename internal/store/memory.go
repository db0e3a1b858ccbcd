package store

import (
	"context"
	"slices"
	"sync"

	"github.com/dkeye/practicerooms/internal/domain"
)

// Memory keeps records in maps. Records are copied in and out.
type Memory struct {
	mu     sync.RWMutex
	users  map[domain.UserID]domain.UserStats
	guilds map[domain.GuildID]domain.GuildConfig
}

func NewMemory() *Memory {
	return &Memory{
		users:  make(map[domain.UserID]domain.UserStats),
		guilds: make(map[domain.GuildID]domain.GuildConfig),
	}
}

func (m *Memory) LoadUser(_ context.Context, id domain.UserID) (*domain.UserStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) SaveUser(_ context.Context, stats *domain.UserStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[stats.UserID] = *stats
	return nil
}

func (m *Memory) ResetPeriod(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.users {
		s.CurrentPeriodSeconds = 0
		m.users[id] = s
	}
	return nil
}

func (m *Memory) LoadGuild(_ context.Context, id domain.GuildID) (*domain.GuildConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.guilds[id]
	if !ok {
		return nil, nil
	}
	g.PermittedRooms = slices.Clone(g.PermittedRooms)
	return &g, nil
}

func (m *Memory) SaveGuild(_ context.Context, cfg *domain.GuildConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := *cfg
	g.PermittedRooms = slices.Clone(cfg.PermittedRooms)
	m.guilds[cfg.GuildID] = g
	return nil
}

func (m *Memory) Close() error { return nil }
