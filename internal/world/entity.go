package world

import (
	"math"
	"time"
)

// Display colors handed out to new avatars.
var botColors = []string{
	"#00FF00",
	"#0000FF",
	"#00FFFF",
	"#FF0000",
	"#114B5F",
	"#E0B0FF",
	"#FFD700",
	"#FF00FF",
	"#FFA500",
}

// Avatar is one life of a bot on the grid. SpawnID changes on every respawn,
// BotID does not.
type Avatar struct {
	SpawnID string  `json:"spawnId"`
	BotID   string  `json:"botId"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Radius  float64 `json:"radius"`
	Color   string  `json:"color"`
}

type Food struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

// Stats are per-bot counters for the current round. They survive respawns.
type Stats struct {
	Kills     int `json:"kills"`
	Deaths    int `json:"deaths"`
	FoodEaten int `json:"foodEaten"`
}

// State is a detached copy of the world. Nothing in it aliases live world data.
type State struct {
	Bots   map[string]Avatar `json:"bots"`
	Food   []Food            `json:"food"`
	Width  int               `json:"width"`
	Height int               `json:"height"`
}

// AvatarOf finds the avatar owned by botID.
func (s State) AvatarOf(botID string) (Avatar, bool) {
	for _, a := range s.Bots {
		if a.BotID == botID {
			return a, true
		}
	}
	return Avatar{}, false
}

type RoundStats struct {
	Stats     map[string]Stats
	StartTime time.Time
}

func distance(ax, ay, bx, by float64) float64 {
	return math.Hypot(ax-bx, ay-by)
}

// EaterRadius merges two circles by area: sqrt((pi*a^2 + pi*b^2) / pi).
func EaterRadius(eaterRadius, eatenRadius float64) float64 {
	return math.Sqrt(eaterRadius*eaterRadius + eatenRadius*eatenRadius)
}

// maxMoveDistance is the per-tick step limit for an avatar of the given radius.
// Bigger avatars are slower, never below the configured floor.
func (w *World) maxMoveDistance(radius float64) float64 {
	if radius <= 0 {
		return w.cfg.MaxMoveDistance
	}
	d := w.cfg.MaxMoveDistance * math.Pow(w.cfg.NewBotRadius/radius, w.cfg.SpeedExponent)
	return math.Max(w.cfg.MinMoveDistance, d)
}

// closestWithin returns the point at dist from (ax, ay) towards (bx, by).
func closestWithin(ax, ay, bx, by, dist float64) (float64, float64) {
	angle := math.Atan2(by-ay, bx-ax)
	return ax + dist*math.Cos(angle), ay + dist*math.Sin(angle)
}
