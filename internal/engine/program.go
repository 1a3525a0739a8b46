package engine

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Scrimzay/botarena/internal/types"
	"github.com/Scrimzay/botarena/internal/world"
)

//go:embed botapi.js
var botAPI string

type playerView struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Radius   float64 `json:"radius"`
	Username string  `json:"username,omitempty"`
}

type foodView struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

// botView is what one bot sees of the world.
type botView struct {
	Me           playerView   `json:"me"`
	OtherPlayers []playerView `json:"otherPlayers"`
	Food         []foodView   `json:"food"`
}

func viewFor(botID string, bots types.Bots, state world.State) (botView, bool) {
	own, ok := state.AvatarOf(botID)
	if !ok {
		return botView{}, false
	}

	others := make([]world.Avatar, 0, len(state.Bots))
	for _, a := range state.Bots {
		if a.BotID != botID {
			others = append(others, a)
		}
	}
	sort.Slice(others, func(i, j int) bool { return others[i].SpawnID < others[j].SpawnID })

	v := botView{
		Me:           player(own, bots),
		OtherPlayers: make([]playerView, 0, len(others)),
		Food:         make([]foodView, 0, len(state.Food)),
	}
	for _, a := range others {
		v.OtherPlayers = append(v.OtherPlayers, player(a, bots))
	}
	for _, f := range state.Food {
		v.Food = append(v.Food, foodView{X: f.X, Y: f.Y, Radius: f.Radius})
	}
	return v, true
}

func player(a world.Avatar, bots types.Bots) playerView {
	return playerView{X: a.X, Y: a.Y, Radius: a.Radius, Username: bots[a.BotID].Username}
}

// BuildProgram assembles the script run for bot: the view globals, then the
// bot's own code, then the API shim that calls step and returns its actions
// as JSON. A bot missing from previous sees its current view there.
func BuildProgram(bot types.BotCode, bots types.Bots, state, previous world.State) (string, error) {
	current, ok := viewFor(bot.ID, bots, state)
	if !ok {
		return "", fmt.Errorf("bot %s has no avatar", bot.ID)
	}
	prev, ok := viewFor(bot.ID, bots, previous)
	if !ok {
		prev = current
	}

	var b strings.Builder
	b.WriteString("var global = globalThis;\n")
	for _, g := range []struct {
		name  string
		value any
	}{
		{"_player", current.Me},
		{"_otherPlayers", current.OtherPlayers},
		{"_food", current.Food},
		{"_previousState", prev},
		{"_worldWidth", state.Width},
		{"_worldHeight", state.Height},
	} {
		raw, err := json.Marshal(g.value)
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", g.name, err)
		}
		fmt.Fprintf(&b, "global.%s = %s;\n", g.name, raw)
	}

	b.WriteString("\n")
	b.WriteString(bot.Code)
	b.WriteString("\n;\n")
	b.WriteString(botAPI)
	return b.String(), nil
}
