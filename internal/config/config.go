package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/practicerooms/internal/store"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode     string `mapstructure:"mode"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`

	// Platform selects the voice backend: "discord" or "memory".
	Platform string `mapstructure:"platform"`

	Discord DiscordConfig `mapstructure:"discord"`
	Rooms   RoomsConfig   `mapstructure:"rooms"`
	Store   store.Config  `mapstructure:"store"`
	HTTP    HTTPConfig    `mapstructure:"http"`
}

type DiscordConfig struct {
	Token       string `mapstructure:"token"`
	GuildID     string `mapstructure:"guild_id"`
	InfoChannel string `mapstructure:"info_channel"`
}

type RoomsConfig struct {
	AutolockDelay    time.Duration `mapstructure:"autolock_delay"`
	SpawnTemplate    string        `mapstructure:"spawn_template"`
	StatusInterval   time.Duration `mapstructure:"status_interval"`
	NoticeTTL        time.Duration `mapstructure:"notice_ttl"`
	BotRole          string        `mapstructure:"bot_role"`
	TempMutedRole    string        `mapstructure:"temp_muted_role"`
	VerificationRole string        `mapstructure:"verification_role"`
}

type HTTPConfig struct {
	AdminToken string        `mapstructure:"admin_token"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
}

// Load reads config/config.<CONFIG_ENV>.yaml, with .env and the process
// environment layered on top. DISCORD_TOKEN overrides discord.token and so on.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Info().Str("module", "config").Msg("loaded .env")
	}
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("platform", "discord")

	v.SetDefault("discord.token", "")
	v.SetDefault("discord.guild_id", "")
	v.SetDefault("discord.info_channel", "")

	v.SetDefault("rooms.autolock_delay", "2m")
	v.SetDefault("rooms.spawn_template", "Extra Practice Room")
	v.SetDefault("rooms.status_interval", "15s")
	v.SetDefault("rooms.notice_ttl", "30s")
	v.SetDefault("rooms.bot_role", "Pinano Bot")
	v.SetDefault("rooms.temp_muted_role", "Temp Muted")
	v.SetDefault("rooms.verification_role", "Verification Required")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "practicerooms.db")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_prefix", "practicerooms:")

	v.SetDefault("http.admin_token", "")
	v.SetDefault("http.read_limit", 4096)
	v.SetDefault("http.ping_period", "54s")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("platform", cfg.Platform).
		Str("store", cfg.Store.Driver).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Platform {
	case "memory":
	case "discord":
		if c.Discord.Token == "" || c.Discord.GuildID == "" {
			return fmt.Errorf("discord platform needs discord.token and discord.guild_id")
		}
	default:
		return fmt.Errorf("unknown platform %q", c.Platform)
	}
	if c.Rooms.AutolockDelay <= 0 {
		return fmt.Errorf("rooms.autolock_delay must be positive, got %s", c.Rooms.AutolockDelay)
	}
	if c.Rooms.StatusInterval <= 0 {
		return fmt.Errorf("rooms.status_interval must be positive, got %s", c.Rooms.StatusInterval)
	}
	return nil
}
