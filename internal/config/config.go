package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	World   World   `yaml:"world"`
	Engine  Engine  `yaml:"engine"`
	Sandbox Sandbox `yaml:"sandbox"`
	Server  Server  `yaml:"server"`
	Storage Storage `yaml:"storage"`
}

type World struct {
	Width                int     `yaml:"width"`
	Height               int     `yaml:"height"`
	MinSpawnDistance     int     `yaml:"min_spawn_distance"`
	NewBotRadius         float64 `yaml:"new_bot_radius"`
	MaxFoodRadius        int     `yaml:"max_food_radius"`
	InitialFoodCount     int     `yaml:"initial_food_count"`
	MaxFoodCount         int     `yaml:"max_food_count"`
	FoodSpawnProbability float64 `yaml:"food_spawn_probability"`
	FoodSpawnCount       int     `yaml:"food_spawn_count"`
	MinMoveDistance      float64 `yaml:"min_move_distance"`
	MaxMoveDistance      float64 `yaml:"max_move_distance"`
	SpeedExponent        float64 `yaml:"speed_exponent"`
}

type Engine struct {
	TickInterval       time.Duration `yaml:"tick_interval"`
	MaxRoundDuration   time.Duration `yaml:"max_round_duration"`
	DominanceFraction  float64       `yaml:"dominance_fraction"`
	MaxCollisionPasses int           `yaml:"max_collision_passes"`
	RecordTimeout      time.Duration `yaml:"record_timeout"`
}

type Sandbox struct {
	PoolSize      int           `yaml:"pool_size"`
	Timeout       time.Duration `yaml:"timeout"`
	MemoryLimitMB int           `yaml:"memory_limit_mb"`
}

type Server struct {
	Addr              string        `yaml:"addr"`
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
}

type Storage struct {
	BotCodeDir  string `yaml:"bot_code_dir"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	TickLogDir  string `yaml:"tick_log_dir"`
}

func Default() Config {
	return Config{
		World: World{
			Width:                600,
			Height:               600,
			MinSpawnDistance:     10,
			NewBotRadius:         5,
			MaxFoodRadius:        3,
			InitialFoodCount:     200,
			MaxFoodCount:         250,
			FoodSpawnProbability: 0.008,
			FoodSpawnCount:       25,
			MinMoveDistance:      0.5,
			MaxMoveDistance:      2,
			SpeedExponent:        0.5,
		},
		Engine: Engine{
			TickInterval:       250 * time.Millisecond,
			MaxRoundDuration:   15 * time.Minute,
			DominanceFraction:  0.25,
			MaxCollisionPasses: 5,
			RecordTimeout:      10 * time.Second,
		},
		Sandbox: Sandbox{
			PoolSize:      runtime.NumCPU(),
			Timeout:       75 * time.Millisecond,
			MemoryLimitMB: 64,
		},
		Server: Server{
			Addr:              ":8000",
			BroadcastInterval: 100 * time.Millisecond,
		},
	}
}

// Load reads path over the defaults and then applies environment overrides. An
// empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		c.Server.Addr = ":" + port
	}
	overrides := map[string]*string{
		"BOT_CODE_DIR": &c.Storage.BotCodeDir,
		"SQLITE_PATH":  &c.Storage.SQLitePath,
		"DATABASE_DSN": &c.Storage.PostgresDSN,
		"TICK_LOG_DIR": &c.Storage.TickLogDir,
	}
	for key, dst := range overrides {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
}

func (c Config) Validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	w := c.World
	check(w.Width > 0 && w.Height > 0, "world dimensions must be positive")
	check(w.MinSpawnDistance >= 0, "min_spawn_distance must not be negative")
	check(w.NewBotRadius > 0, "new_bot_radius must be positive")
	check(w.MaxFoodRadius > 0, "max_food_radius must be positive")
	check(w.InitialFoodCount >= 0 && w.MaxFoodCount >= 0 && w.FoodSpawnCount >= 0, "food counts must not be negative")
	check(w.FoodSpawnProbability >= 0 && w.FoodSpawnProbability <= 1, "food_spawn_probability must be within [0,1]")
	check(w.MinMoveDistance > 0, "min_move_distance must be positive")
	check(w.MinMoveDistance <= w.MaxMoveDistance, "min_move_distance must not exceed max_move_distance")
	check(w.SpeedExponent >= 0, "speed_exponent must not be negative")

	e := c.Engine
	check(e.TickInterval > 0, "tick_interval must be positive")
	check(e.MaxRoundDuration > 0, "max_round_duration must be positive")
	check(e.DominanceFraction > 0, "dominance_fraction must be positive")
	check(e.MaxCollisionPasses > 0, "max_collision_passes must be positive")
	check(e.RecordTimeout > 0, "record_timeout must be positive")

	s := c.Sandbox
	check(s.PoolSize > 0, "sandbox pool_size must be positive")
	check(s.Timeout > 0, "sandbox timeout must be positive")
	check(s.MemoryLimitMB > 0, "sandbox memory_limit_mb must be positive")

	check(c.Server.BroadcastInterval > 0, "broadcast_interval must be positive")

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
