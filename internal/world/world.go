package world

import (
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Scrimzay/botarena/internal/config"
)

var (
	ErrNoSpawnPosition = errors.New("no available positions to spawn bot")
	ErrBotNotFound     = errors.New("bot not found")
)

// World owns every avatar and food item of one round. It is not safe for
// concurrent use; the engine loop is its only caller.
type World struct {
	cfg       config.World
	rng       *rand.Rand
	startTime time.Time

	avatars    map[string]*Avatar // spawn id -> avatar
	botToSpawn map[string]string  // bot id -> spawn id
	food       []Food
	stats      map[string]*Stats // bot id -> counters

	// scratch space for spawn searches, sized to the grid once
	taken     []bool
	positions []int
}

type Option func(*World)

// WithRand makes spawning reproducible.
func WithRand(rng *rand.Rand) Option {
	return func(w *World) { w.rng = rng }
}

// WithStartTime overrides the round start timestamp.
func WithStartTime(t time.Time) Option {
	return func(w *World) { w.startTime = t }
}

func New(cfg config.World, opts ...Option) *World {
	cells := cfg.Width * cfg.Height
	w := &World{
		cfg:        cfg,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		startTime:  time.Now(),
		avatars:    make(map[string]*Avatar),
		botToSpawn: make(map[string]string),
		stats:      make(map[string]*Stats),
		taken:      make([]bool, cells),
		positions:  make([]int, 0, cells),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.generateFood(cfg.InitialFoodCount)
	return w
}

func (w *World) Width() int  { return w.cfg.Width }
func (w *World) Height() int { return w.cfg.Height }

func (w *World) StartTime() time.Time { return w.startTime }

func (w *World) HasBot(botID string) bool {
	_, ok := w.botToSpawn[botID]
	return ok
}

// SpawnID returns the current life of botID, false if it has no avatar.
func (w *World) SpawnID(botID string) (string, bool) {
	id, ok := w.botToSpawn[botID]
	return id, ok
}

// AddBot places a fresh avatar for botID on a free cell.
func (w *World) AddBot(botID string) (Avatar, error) {
	positions := w.availableSpawnPositions(int(math.Ceil(w.cfg.NewBotRadius)))
	if len(positions) == 0 {
		return Avatar{}, fmt.Errorf("add bot %s: %w", botID, ErrNoSpawnPosition)
	}

	x, y := DeserializePosition(positions[w.rng.Intn(len(positions))], w.cfg.Height)
	a := &Avatar{
		SpawnID: uuid.NewString(),
		BotID:   botID,
		X:       float64(x),
		Y:       float64(y),
		Radius:  w.cfg.NewBotRadius,
		Color:   botColors[w.rng.Intn(len(botColors))],
	}

	if old, ok := w.botToSpawn[botID]; ok {
		delete(w.avatars, old)
	}
	w.avatars[a.SpawnID] = a
	w.botToSpawn[botID] = a.SpawnID
	if _, ok := w.stats[botID]; !ok {
		w.stats[botID] = &Stats{}
	}
	return *a, nil
}

func (w *World) avatarOf(botID string) (*Avatar, error) {
	spawnID, ok := w.botToSpawn[botID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBotNotFound, botID)
	}
	a, ok := w.avatars[spawnID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBotNotFound, botID)
	}
	return a, nil
}

// MoveBot steps botID towards (x, y), limited by its speed and then clamped to
// the grid. Clamping ignores the radius.
func (w *World) MoveBot(botID string, x, y float64) error {
	a, err := w.avatarOf(botID)
	if err != nil {
		return err
	}

	limit := w.maxMoveDistance(a.Radius)
	if distance(a.X, a.Y, x, y) > limit {
		x, y = closestWithin(a.X, a.Y, x, y, limit)
	}

	a.X = math.Max(0, math.Min(x, float64(w.cfg.Width)))
	a.Y = math.Max(0, math.Min(y, float64(w.cfg.Height)))
	return nil
}

// CheckCollisions runs one eating pass and reports whether anything was eaten.
// Avatars are processed smallest first so small ones get to eat before a bigger
// one removes them.
func (w *World) CheckCollisions() bool {
	order := make([]*Avatar, 0, len(w.avatars))
	for _, a := range w.avatars {
		order = append(order, a)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].Radius != order[j].Radius {
			return order[i].Radius < order[j].Radius
		}
		return order[i].SpawnID < order[j].SpawnID
	})

	collided := false
	for _, eater := range order {
		if _, alive := w.avatars[eater.SpawnID]; !alive {
			continue
		}

		prey := w.preyOf(eater)
		eatenFood := w.foodEatenBy(eater)

		for _, victim := range prey {
			eater.Radius = EaterRadius(eater.Radius, victim.Radius)
			delete(w.botToSpawn, victim.BotID)
			delete(w.avatars, victim.SpawnID)
			w.incrementStat(eater.BotID, func(s *Stats) { s.Kills++ })
			w.incrementStat(victim.BotID, func(s *Stats) { s.Deaths++ })
		}

		// descending so earlier indexes stay valid while removing
		sort.Sort(sort.Reverse(sort.IntSlice(eatenFood)))
		for _, idx := range eatenFood {
			eater.Radius = EaterRadius(eater.Radius, w.food[idx].Radius)
			w.food = append(w.food[:idx], w.food[idx+1:]...)
			w.incrementStat(eater.BotID, func(s *Stats) { s.FoodEaten++ })
		}

		if len(prey) > 0 || len(eatenFood) > 0 {
			collided = true
		}
	}
	return collided
}

func (w *World) preyOf(eater *Avatar) []*Avatar {
	var prey []*Avatar
	for spawnID, other := range w.avatars {
		if spawnID == eater.SpawnID {
			continue
		}
		if distance(eater.X, eater.Y, other.X, other.Y) < eater.Radius && other.Radius < eater.Radius {
			prey = append(prey, other)
		}
	}
	return prey
}

func (w *World) foodEatenBy(eater *Avatar) []int {
	var idx []int
	for i, f := range w.food {
		if distance(eater.X, eater.Y, f.X, f.Y) < eater.Radius {
			idx = append(idx, i)
		}
	}
	return idx
}

func (w *World) incrementStat(botID string, inc func(*Stats)) {
	s, ok := w.stats[botID]
	if !ok {
		log.Printf("world: no stats for bot %s", botID)
		return
	}
	inc(s)
}

// SpawnFood tops up food with a fixed per-call probability.
func (w *World) SpawnFood() {
	if w.rng.Float64() < w.cfg.FoodSpawnProbability {
		w.generateFood(w.cfg.FoodSpawnCount)
	}
}

func (w *World) generateFood(count int) {
	n := min(count, w.cfg.MaxFoodCount-len(w.food))
	if n <= 0 {
		return
	}

	positions := w.availableSpawnPositions(w.cfg.MaxFoodRadius)
	for i := 0; i < n && len(positions) > 0; i++ {
		pick := w.rng.Intn(len(positions))
		x, y := DeserializePosition(positions[pick], w.cfg.Height)
		last := len(positions) - 1
		positions[pick] = positions[last]
		positions = positions[:last]

		w.food = append(w.food, Food{
			X:      float64(x),
			Y:      float64(y),
			Radius: float64(w.rng.Intn(w.cfg.MaxFoodRadius) + 1),
		})
	}
}

// State returns a deep copy of avatars and food.
func (w *World) State() State {
	bots := make(map[string]Avatar, len(w.avatars))
	for id, a := range w.avatars {
		bots[id] = *a
	}
	food := make([]Food, len(w.food))
	copy(food, w.food)

	return State{
		Bots:   bots,
		Food:   food,
		Width:  w.cfg.Width,
		Height: w.cfg.Height,
	}
}

func (w *World) Stats() RoundStats {
	stats := make(map[string]Stats, len(w.stats))
	for id, s := range w.stats {
		stats[id] = *s
	}
	return RoundStats{Stats: stats, StartTime: w.startTime}
}

// LargestRadius is the radius of the biggest live avatar, 0 when empty.
func (w *World) LargestRadius() float64 {
	largest := 0.0
	for _, a := range w.avatars {
		largest = math.Max(largest, a.Radius)
	}
	return largest
}

// Radius returns the live radius of botID, 0 when it has no avatar.
func (w *World) Radius(botID string) float64 {
	a, err := w.avatarOf(botID)
	if err != nil {
		return 0
	}
	return a.Radius
}

func (w *World) AvatarCount() int { return len(w.avatars) }
func (w *World) FoodCount() int   { return len(w.food) }
