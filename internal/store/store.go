// Package store persists user practice stats and guild configuration.
package store

import (
	"context"
	"fmt"

	"github.com/dkeye/practicerooms/internal/domain"
)

// Repository is the persistence collaborator. Load methods return nil, nil
// for a missing record.
type Repository interface {
	LoadUser(ctx context.Context, id domain.UserID) (*domain.UserStats, error)
	SaveUser(ctx context.Context, stats *domain.UserStats) error
	// ResetPeriod zeroes every user's current period counter.
	ResetPeriod(ctx context.Context) error

	LoadGuild(ctx context.Context, id domain.GuildID) (*domain.GuildConfig, error)
	SaveGuild(ctx context.Context, cfg *domain.GuildConfig) error

	Close() error
}

type Config struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisPrefix string `mapstructure:"redis_prefix"`
}

// Open builds the repository selected by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Repository, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return OpenSQLite(cfg.SQLitePath)
	case "redis":
		return OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPrefix)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
