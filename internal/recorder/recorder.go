// Package recorder stores finished rounds.
package recorder

import (
	"context"
	"errors"
	"log"

	"github.com/Scrimzay/botarena/internal/types"
)

var ErrClosed = errors.New("recorder closed")

// Recorder persists one finished round. Implementations write the game and
// all of its stat lines atomically.
type Recorder interface {
	RecordGameEnd(ctx context.Context, rec types.GameRecord) error
	Close() error
}

// LogRecorder only logs results. Used when no database is configured.
type LogRecorder struct{}

func (LogRecorder) RecordGameEnd(_ context.Context, rec types.GameRecord) error {
	log.Printf("recorder: game ended (%s) %s -> %s, %d players",
		rec.EndReason, rec.StartTime.Format("15:04:05"), rec.EndTime.Format("15:04:05"), len(rec.Stats))
	for _, s := range rec.Stats {
		log.Printf("recorder:   user %d size=%.2f food=%d kills=%d deaths=%d",
			s.UserID, s.Size, s.FoodEaten, s.Kills, s.Deaths)
	}
	return nil
}

func (LogRecorder) Close() error { return nil }

// Multi fans a record out to several recorders and joins their errors.
type Multi []Recorder

func (m Multi) RecordGameEnd(ctx context.Context, rec types.GameRecord) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordGameEnd(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}
