package recorder

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Scrimzay/botarena/internal/types"
)

type Game struct {
	ID        uint64 `gorm:"primaryKey"`
	StartTime time.Time
	EndTime   time.Time
	EndReason string     `gorm:"not null"`
	Stats     []GameStat `gorm:"constraint:OnDelete:CASCADE"`
}

type GameStat struct {
	ID        uint64 `gorm:"primaryKey"`
	GameID    uint64 `gorm:"index;not null"`
	PlayerID  int64  `gorm:"index;not null"`
	Size      float64
	FoodEaten int
	Kills     int
	Deaths    int
}

type PostgresRecorder struct {
	db *gorm.DB
}

func OpenPostgres(dsn string) (*PostgresRecorder, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&Game{}, &GameStat{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PostgresRecorder{db: db}, nil
}

// RecordGameEnd creates the game with its stats in one transaction.
func (r *PostgresRecorder) RecordGameEnd(ctx context.Context, rec types.GameRecord) error {
	game := Game{
		StartTime: rec.StartTime,
		EndTime:   rec.EndTime,
		EndReason: rec.EndReason,
		Stats:     make([]GameStat, 0, len(rec.Stats)),
	}
	for _, s := range rec.Stats {
		game.Stats = append(game.Stats, GameStat{
			PlayerID:  s.UserID,
			Size:      s.Size,
			FoodEaten: s.FoodEaten,
			Kills:     s.Kills,
			Deaths:    s.Deaths,
		})
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&game).Error
	})
}

// GamesFor lists the rounds userID finished in, newest first.
func (r *PostgresRecorder) GamesFor(ctx context.Context, userID int64, limit int) ([]Game, error) {
	var games []Game
	q := r.db.WithContext(ctx).
		Joins("JOIN game_stats ON game_stats.game_id = games.id AND game_stats.player_id = ?", userID).
		Preload("Stats").
		Order("games.end_time DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&games).Error; err != nil {
		return nil, err
	}
	return games, nil
}

func (r *PostgresRecorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
