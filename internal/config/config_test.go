package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "platform: memory\n"))
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 2*time.Minute, cfg.Rooms.AutolockDelay)
	assert.Equal(t, 15*time.Second, cfg.Rooms.StatusInterval)
	assert.Equal(t, 30*time.Second, cfg.Rooms.NoticeTTL)
	assert.Equal(t, "Extra Practice Room", cfg.Rooms.SpawnTemplate)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "practicerooms.db", cfg.Store.SQLitePath)
}

func TestLoadFileOverrides(t *testing.T) {
	t.Setenv("HTTP_ADMIN_TOKEN", "from-env")
	cfg, err := LoadFile(writeConfig(t, `
mode: debug
platform: memory
rooms:
  autolock_delay: 90s
  spawn_template: Spare Room
store:
  driver: redis
  redis_addr: cache:6379
http:
  admin_token: from-file
`))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 90*time.Second, cfg.Rooms.AutolockDelay)
	assert.Equal(t, "Spare Room", cfg.Rooms.SpawnTemplate)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "cache:6379", cfg.Store.RedisAddr)
	assert.Equal(t, "from-env", cfg.HTTP.AdminToken)
}

func TestLoadFileValidates(t *testing.T) {
	_, err := LoadFile(writeConfig(t, "platform: discord\n"))
	assert.ErrorContains(t, err, "discord.token")

	_, err = LoadFile(writeConfig(t, "platform: carrier-pigeon\n"))
	assert.ErrorContains(t, err, "unknown platform")

	_, err = LoadFile(writeConfig(t, "platform: memory\nrooms:\n  autolock_delay: 0s\n"))
	assert.ErrorContains(t, err, "autolock_delay")
}
