package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Scrimzay/botarena/internal/config"
	"github.com/Scrimzay/botarena/internal/sandbox"
	"github.com/Scrimzay/botarena/internal/types"
	"github.com/Scrimzay/botarena/internal/world"
)

// BotSource supplies the active bots and pushes replacements when they change.
type BotSource interface {
	Bots() types.Bots
	Subscribe(fn func(types.Bots)) (unsubscribe func())
}

type GameRecorder interface {
	RecordGameEnd(ctx context.Context, rec types.GameRecord) error
}

type TickLogger interface {
	Write(v any) error
}

// Engine drives rounds at a fixed cadence. The world is touched only from the
// goroutine calling Step/Run; everything exported besides those is safe to
// call from anywhere.
type Engine struct {
	cfg      config.Engine
	worldCfg config.World
	source   BotSource
	runner   sandbox.Runner
	recorder GameRecorder
	tickLog  TickLogger

	bots      atomic.Pointer[types.Bots]
	published atomic.Pointer[world.State]
	errors    *BotErrors

	world     *world.World
	previous  *world.State
	deadline  time.Time
	tick      atomic.Uint64
	round     int
	now       func() time.Time
	worldOpts []world.Option

	recordings sync.WaitGroup
}

type Option func(*Engine)

// WithClock replaces time.Now for round timing.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithTickLog(l TickLogger) Option {
	return func(e *Engine) { e.tickLog = l }
}

// WithWorldOptions is applied to every world the engine builds.
func WithWorldOptions(opts ...world.Option) Option {
	return func(e *Engine) { e.worldOpts = append(e.worldOpts, opts...) }
}

func New(cfg config.Config, source BotSource, runner sandbox.Runner, recorder GameRecorder, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg.Engine,
		worldCfg: cfg.World,
		source:   source,
		runner:   runner,
		recorder: recorder,
		errors:   NewBotErrors(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.SetBots(source.Bots())
	e.startRound()
	return e
}

func (e *Engine) startRound() {
	opts := append([]world.Option{world.WithStartTime(e.now())}, e.worldOpts...)
	e.world = world.New(e.worldCfg, opts...)
	e.deadline = e.world.StartTime().Add(e.cfg.MaxRoundDuration)
	e.previous = nil
	e.round++

	state := e.world.State()
	e.published.Store(&state)
}

// Run ticks until ctx is done. Each iteration sleeps only for what is left of
// the interval after the tick itself.
func (e *Engine) Run(ctx context.Context) error {
	unsubscribe := e.source.Subscribe(e.SetBots)
	defer unsubscribe()
	e.SetBots(e.source.Bots())

	log.Printf("engine: running, tick every %v", e.cfg.TickInterval)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		started := time.Now()
		if err := e.Step(ctx); err != nil {
			log.Printf("engine: tick %d: %v", e.Tick(), err)
		}

		elapsed := time.Since(started)
		wait := e.cfg.TickInterval - elapsed
		if wait < 0 {
			log.Printf("engine: tick %d overran by %v (took %v)", e.Tick(), -wait, elapsed)
			wait = 0
		}
		timer.Reset(wait)
	}
}

type job struct {
	botID   string
	program string
}

type result struct {
	botID   string
	raw     string
	err     error
	elapsed time.Duration
}

// Step runs one full tick. It never panics; a panic in the tick body is
// logged and returned as an error so the loop keeps going.
func (e *Engine) Step(ctx context.Context) (err error) {
	tick := e.tick.Add(1)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("engine: PANIC in tick %d: %v\nStack trace:\n%s", tick, r, debug.Stack())
			err = fmt.Errorf("tick %d panicked: %v", tick, r)
		}
	}()

	started := time.Now()
	bots := e.Bots()
	spawnErr := e.ensureAvatars(bots)

	state := e.world.State()
	previous := state
	if e.previous != nil {
		previous = *e.previous
	}

	jobs := e.prepare(bots, state, previous)

	codeStarted := time.Now()
	results := e.execute(ctx, jobs)
	codeTime := time.Since(codeStarted)

	moveStarted := time.Now()
	failures := e.apply(ctx, results)
	moveTime := time.Since(moveStarted)

	collisionStarted := time.Now()
	for pass := 0; pass < e.cfg.MaxCollisionPasses; pass++ {
		if !e.world.CheckCollisions() {
			break
		}
	}
	collisionTime := time.Since(collisionStarted)

	foodStarted := time.Now()
	e.world.SpawnFood()
	foodTime := time.Since(foodStarted)

	if reason, over := e.roundOver(); over {
		e.endRound(ctx, reason)
	}

	now := e.world.State()
	e.previous = &now
	e.published.Store(&now)

	elapsed := time.Since(started)
	e.writeTickLog(tickSummary{
		Tick:         tick,
		Round:        e.round,
		At:           started.UTC(),
		DurationMs:   ms(elapsed),
		CodeMs:       ms(codeTime),
		MoveMs:       ms(moveTime),
		CollisionsMs: ms(collisionTime),
		FoodMs:       ms(foodTime),
		Bots:         len(bots),
		Programs:     len(jobs),
		Failures:     failures,
		Avatars:      len(now.Bots),
		Food:         len(now.Food),
		Overrun:      elapsed > e.cfg.TickInterval,
	})
	return spawnErr
}

// ensureAvatars spawns every known bot that has no live avatar.
func (e *Engine) ensureAvatars(bots types.Bots) error {
	var errs []error
	for _, id := range sortedIDs(bots) {
		if e.world.HasBot(id) {
			continue
		}
		if _, err := e.world.AddBot(id); err != nil {
			log.Printf("engine: cannot spawn bot %s: %v", id, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) prepare(bots types.Bots, state, previous world.State) []job {
	jobs := make([]job, 0, len(bots))
	for _, id := range sortedIDs(bots) {
		program, err := BuildProgram(bots[id], bots, state, previous)
		if err != nil {
			log.Printf("engine: skipping bot %s: %v", id, err)
			continue
		}
		jobs = append(jobs, job{botID: id, program: program})
	}
	return jobs
}

// execute runs every job at once and waits for all of them. Failures stay in
// their own result.
func (e *Engine) execute(ctx context.Context, jobs []job) []result {
	results := make([]result, len(jobs))
	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started := time.Now()
			raw, err := e.runner.Run(ctx, j.program)
			results[i] = result{botID: j.botID, raw: raw, err: err, elapsed: time.Since(started)}
		}()
	}
	wg.Wait()
	return results
}

// apply moves every bot whose program produced a move. It returns how many
// programs failed.
func (e *Engine) apply(ctx context.Context, results []result) int {
	failures := 0
	for _, r := range results {
		if r.err != nil {
			failures++
			if ctx.Err() == nil {
				e.errors.Set(r.botID, r.err.Error())
			}
			continue
		}

		action, err := ParseAction(r.raw)
		switch {
		case errors.Is(err, ErrNoAction):
			e.errors.Clear(r.botID)
			continue
		case err != nil:
			failures++
			e.errors.Set(r.botID, err.Error())
			continue
		}

		e.errors.Clear(r.botID)
		if err := e.world.MoveBot(r.botID, action.X, action.Y); err != nil {
			log.Printf("engine: move bot %s: %v", r.botID, err)
		}
	}
	return failures
}

// SetBots replaces the bot set from the next tick on. Bots that are new get
// an avatar then; stats of dropped bots stay with the round.
func (e *Engine) SetBots(bots types.Bots) {
	e.bots.Store(&bots)
}

// Bots is the bot set the next tick will use.
func (e *Engine) Bots() types.Bots {
	return *e.bots.Load()
}

// State is the snapshot published after the last tick. Callers must not
// modify it.
func (e *Engine) State() world.State {
	return *e.published.Load()
}

// BotError is the last error produced by botID's program.
func (e *Engine) BotError(botID string) (string, bool) {
	return e.errors.Get(botID)
}

func (e *Engine) Tick() uint64 { return e.tick.Load() }

// Wait blocks until every pending game record has been handed off.
func (e *Engine) Wait() {
	e.recordings.Wait()
}

func sortedIDs(bots types.Bots) []string {
	ids := make([]string, 0, len(bots))
	for id := range bots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
