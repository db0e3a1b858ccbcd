package store

import (
	"context"
	"testing"

	"github.com/dkeye/practicerooms/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testRedisAddr = "localhost:6379"

// setupTestDB creates an in-memory SQLite store for testing.
func setupTestDB(t *testing.T) *SQL {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	s, err := NewSQL(db)
	require.NoError(t, err)
	return s
}

func setupTestRedis(t *testing.T) *Redis {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}
	prefix := "practicerooms-test:" + t.Name() + ":"
	cleanup := func() {
		keys, _ := client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
	}
	cleanup()
	t.Cleanup(func() {
		cleanup()
		client.Close()
	})
	return NewRedis(client, prefix)
}

func repositories(t *testing.T) map[string]func(t *testing.T) Repository {
	return map[string]func(t *testing.T) Repository{
		"memory": func(t *testing.T) Repository { return NewMemory() },
		"sqlite": func(t *testing.T) Repository { return setupTestDB(t) },
		"redis":  func(t *testing.T) Repository { return setupTestRedis(t) },
	}
}

func TestRepository_UserStats(t *testing.T) {
	for name, open := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()

			got, err := repo.LoadUser(ctx, "u1")
			require.NoError(t, err)
			assert.Nil(t, got, "missing user loads as nil")

			require.NoError(t, repo.SaveUser(ctx, &domain.UserStats{UserID: "u1", CurrentPeriodSeconds: 30, CumulativeSeconds: 90}))
			require.NoError(t, repo.SaveUser(ctx, &domain.UserStats{UserID: "u2", CurrentPeriodSeconds: 5, CumulativeSeconds: 5}))

			got, err = repo.LoadUser(ctx, "u1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, int64(30), got.CurrentPeriodSeconds)
			assert.Equal(t, int64(90), got.CumulativeSeconds)

			got.AddSeconds(10)
			require.NoError(t, repo.SaveUser(ctx, got))
			got, err = repo.LoadUser(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, int64(40), got.CurrentPeriodSeconds)
			assert.Equal(t, int64(100), got.CumulativeSeconds)

			require.NoError(t, repo.ResetPeriod(ctx))
			for _, id := range []domain.UserID{"u1", "u2"} {
				s, err := repo.LoadUser(ctx, id)
				require.NoError(t, err)
				assert.Zero(t, s.CurrentPeriodSeconds, id)
				assert.NotZero(t, s.CumulativeSeconds, id)
			}
		})
	}
}

func TestRepository_GuildConfig(t *testing.T) {
	for name, open := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()

			got, err := repo.LoadGuild(ctx, "g1")
			require.NoError(t, err)
			assert.Nil(t, got)

			cfg := &domain.GuildConfig{GuildID: "g1", PermittedRooms: []domain.RoomID{"r2", "r1", "r3"}}
			require.NoError(t, repo.SaveGuild(ctx, cfg))

			got, err = repo.LoadGuild(ctx, "g1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, []domain.RoomID{"r2", "r1", "r3"}, got.PermittedRooms, "order is kept")

			got.PermittedRooms = got.PermittedRooms[:1]
			require.NoError(t, repo.SaveGuild(ctx, got))
			got, err = repo.LoadGuild(ctx, "g1")
			require.NoError(t, err)
			assert.Equal(t, []domain.RoomID{"r2"}, got.PermittedRooms)
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "leveldb"})
	assert.Error(t, err)
}
