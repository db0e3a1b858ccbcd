package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/practicerooms/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Redis stores each record as a JSON value under prefix+kind+":"+id.
type Redis struct {
	client *redis.Client
	prefix string
}

func OpenRedis(ctx context.Context, addr, prefix string) (*Redis, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info().Str("module", "store").Str("addr", addr).Msg("redis store ready")
	return NewRedis(client, prefix), nil
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "practicerooms:"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) userKey(id domain.UserID) string   { return r.prefix + "user:" + string(id) }
func (r *Redis) guildKey(id domain.GuildID) string { return r.prefix + "guild:" + string(id) }

func (r *Redis) load(ctx context.Context, key string, dest any) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("redis decode %s: %w", key, err)
	}
	return true, nil
}

func (r *Redis) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis encode %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) LoadUser(ctx context.Context, id domain.UserID) (*domain.UserStats, error) {
	var s domain.UserStats
	ok, err := r.load(ctx, r.userKey(id), &s)
	if err != nil || !ok {
		return nil, err
	}
	return &s, nil
}

func (r *Redis) SaveUser(ctx context.Context, stats *domain.UserStats) error {
	return r.save(ctx, r.userKey(stats.UserID), stats)
}

// ResetPeriod rewrites every user record found by SCAN.
func (r *Redis) ResetPeriod(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"user:*", 100).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		for _, key := range keys {
			var s domain.UserStats
			ok, err := r.load(ctx, key, &s)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			s.CurrentPeriodSeconds = 0
			if err := r.save(ctx, key, &s); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (r *Redis) LoadGuild(ctx context.Context, id domain.GuildID) (*domain.GuildConfig, error) {
	var g domain.GuildConfig
	ok, err := r.load(ctx, r.guildKey(id), &g)
	if err != nil || !ok {
		return nil, err
	}
	return &g, nil
}

func (r *Redis) SaveGuild(ctx context.Context, cfg *domain.GuildConfig) error {
	return r.save(ctx, r.guildKey(cfg.GuildID), cfg)
}

func (r *Redis) Close() error { return r.client.Close() }
