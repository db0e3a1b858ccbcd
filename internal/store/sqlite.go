package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/practicerooms/internal/domain"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type userRow struct {
	ID                   string `gorm:"primarykey;size:32"`
	CurrentPeriodSeconds int64  `gorm:"not null;default:0"`
	CumulativeSeconds    int64  `gorm:"not null;default:0"`
}

func (userRow) TableName() string { return "user_stats" }

type guildRow struct {
	ID             string   `gorm:"primarykey;size:32"`
	PermittedRooms []string `gorm:"serializer:json"`
}

func (guildRow) TableName() string { return "guild_configs" }

// SQL stores records through gorm.
type SQL struct {
	db *gorm.DB
}

// OpenSQLite opens (and migrates) a sqlite database at path.
func OpenSQLite(path string) (*SQL, error) {
	if path == "" {
		path = "practicerooms.db"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s, err := NewSQL(db)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "store").Str("path", path).Msg("sqlite store ready")
	return s, nil
}

// NewSQL wraps an open gorm handle and migrates the schema.
func NewSQL(db *gorm.DB) (*SQL, error) {
	if err := db.AutoMigrate(&userRow{}, &guildRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &SQL{db: db}, nil
}

func (s *SQL) LoadUser(ctx context.Context, id domain.UserID) (*domain.UserStats, error) {
	var row userRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &domain.UserStats{
		UserID:               domain.UserID(row.ID),
		CurrentPeriodSeconds: row.CurrentPeriodSeconds,
		CumulativeSeconds:    row.CumulativeSeconds,
	}, nil
}

func (s *SQL) SaveUser(ctx context.Context, stats *domain.UserStats) error {
	row := userRow{
		ID:                   string(stats.UserID),
		CurrentPeriodSeconds: stats.CurrentPeriodSeconds,
		CumulativeSeconds:    stats.CumulativeSeconds,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *SQL) ResetPeriod(ctx context.Context) error {
	err := s.db.WithContext(ctx).Model(&userRow{}).Where("1 = 1").Update("current_period_seconds", 0).Error
	if err != nil {
		return fmt.Errorf("failed to reset period: %w", err)
	}
	return nil
}

func (s *SQL) LoadGuild(ctx context.Context, id domain.GuildID) (*domain.GuildConfig, error) {
	var row guildRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load guild: %w", err)
	}
	cfg := &domain.GuildConfig{GuildID: domain.GuildID(row.ID)}
	for _, r := range row.PermittedRooms {
		cfg.PermittedRooms = append(cfg.PermittedRooms, domain.RoomID(r))
	}
	return cfg, nil
}

func (s *SQL) SaveGuild(ctx context.Context, cfg *domain.GuildConfig) error {
	row := guildRow{ID: string(cfg.GuildID), PermittedRooms: []string{}}
	for _, r := range cfg.PermittedRooms {
		row.PermittedRooms = append(row.PermittedRooms, string(r))
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save guild: %w", err)
	}
	return nil
}

func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
