package engine

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/Scrimzay/botarena/internal/types"
)

// roundOver reports whether the current round has to end and why. Time runs
// out first; otherwise a single avatar outgrowing the dominance share of the
// board ends it.
func (e *Engine) roundOver() (string, bool) {
	if e.now().After(e.deadline) {
		return types.EndReasonTimeUp, true
	}
	limit := float64(e.world.Height()) * e.cfg.DominanceFraction
	if e.world.LargestRadius() > limit {
		return types.EndReasonOverdominating, true
	}
	return "", false
}

func (e *Engine) endRound(ctx context.Context, reason string) {
	rec := e.gameRecord(reason)
	log.Printf("engine: round %d ended (%s) after %v with %d ranked bots",
		e.round, reason, rec.EndTime.Sub(rec.StartTime).Round(time.Second), len(rec.Stats))

	e.writeTickLog(roundSummary{
		Event:     "round_end",
		Round:     e.round,
		Reason:    reason,
		StartTime: rec.StartTime.UTC(),
		EndTime:   rec.EndTime.UTC(),
		Stats:     rec.Stats,
	})
	e.record(ctx, rec)
	e.startRound()
}

// gameRecord collects the final standings. Bots without an owner or without
// a live avatar at the end are left out.
func (e *Engine) gameRecord(reason string) types.GameRecord {
	bots := e.Bots()
	round := e.world.Stats()

	ids := make([]string, 0, len(round.Stats))
	for id := range round.Stats {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	stats := make([]types.GameStat, 0, len(ids))
	for _, id := range ids {
		s := round.Stats[id]
		size := e.world.Radius(id)
		userID := bots[id].UserID
		if userID == 0 || size == 0 {
			continue
		}
		stats = append(stats, types.GameStat{
			UserID:    userID,
			Size:      size,
			FoodEaten: s.FoodEaten,
			Kills:     s.Kills,
			Deaths:    s.Deaths,
		})
	}

	return types.GameRecord{
		StartTime: round.StartTime,
		EndTime:   e.now(),
		EndReason: reason,
		Stats:     stats,
	}
}

// record hands rec to the recorder in the background so a slow store never
// stalls the next round.
func (e *Engine) record(ctx context.Context, rec types.GameRecord) {
	if e.recorder == nil {
		return
	}
	e.recordings.Add(1)
	go func() {
		defer e.recordings.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.RecordTimeout)
		defer cancel()
		if err := e.recorder.RecordGameEnd(ctx, rec); err != nil {
			log.Printf("engine: failed to record game (%s, %d stats): %v", rec.EndReason, len(rec.Stats), err)
		}
	}()
}
