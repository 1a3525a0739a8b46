package types

import "time"

// Contract types shared with the collaborators around the engine: the bot code
// source, the game recorder and the status surface.

// BotCode is one player's bot. ID is stable for the owner across submissions and
// is not the same thing as a per-life spawn id.
type BotCode struct {
	ID       string `json:"id"`
	Code     string `json:"code"`
	Username string `json:"username"`
	UserID   int64  `json:"userId"`
}

// Bots maps bot id to its code. A published Bots value is never mutated; updates
// replace the whole map.
type Bots map[string]BotCode

// Clone returns a copy that is safe to modify.
func (b Bots) Clone() Bots {
	out := make(Bots, len(b))
	for id, bot := range b {
		out[id] = bot
	}
	return out
}

// GameStat is one player's line in a finished round.
type GameStat struct {
	UserID    int64   `json:"userId"`
	Size      float64 `json:"size"`
	FoodEaten int     `json:"foodEaten"`
	Kills     int     `json:"kills"`
	Deaths    int     `json:"deaths"`
}

type GameRecord struct {
	StartTime time.Time  `json:"startTime"`
	EndTime   time.Time  `json:"endTime"`
	EndReason string     `json:"endReason"`
	Stats     []GameStat `json:"stats"`
}

const (
	EndReasonTimeUp         = "time's up"
	EndReasonOverdominating = "overdominating"
)
