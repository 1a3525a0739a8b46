package engine

import (
	"log"
	"time"

	"github.com/Scrimzay/botarena/internal/types"
)

type tickSummary struct {
	Tick         uint64    `json:"tick"`
	Round        int       `json:"round"`
	At           time.Time `json:"at"`
	DurationMs   float64   `json:"duration_ms"`
	CodeMs       float64   `json:"code_ms"`
	MoveMs       float64   `json:"move_ms"`
	CollisionsMs float64   `json:"collisions_ms"`
	FoodMs       float64   `json:"food_ms"`
	Bots         int       `json:"bots"`
	Programs     int       `json:"programs"`
	Failures     int       `json:"errors"`
	Avatars      int       `json:"avatars"`
	Food         int       `json:"food"`
	Overrun      bool      `json:"overrun"`
}

type roundSummary struct {
	Event     string           `json:"event"`
	Round     int              `json:"round"`
	Reason    string           `json:"reason"`
	StartTime time.Time        `json:"start_time"`
	EndTime   time.Time        `json:"end_time"`
	Stats     []types.GameStat `json:"stats"`
}

func (e *Engine) writeTickLog(v any) {
	if e.tickLog == nil {
		return
	}
	if err := e.tickLog.Write(v); err != nil {
		log.Printf("engine: tick log: %v", err)
	}
}
