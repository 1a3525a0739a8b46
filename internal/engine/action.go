package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrNoAction means the program ran but asked for nothing the engine acts on.
var ErrNoAction = errors.New("no action")

const moveActionSchema = `{
  "type": "object",
  "required": ["type", "x", "y"],
  "properties": {
    "type": { "const": "move" },
    "x": { "type": "number" },
    "y": { "type": "number" }
  }
}`

var moveAction = jsonschema.MustCompileString("move-action.json", moveActionSchema)

type Action struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// ParseAction reads a program result. Only the first element counts and only
// a move is understood; anything else yields ErrNoAction. A result that is
// not a JSON array is an error of its own.
func ParseAction(raw string) (Action, error) {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Action{}, fmt.Errorf("malformed result %q: %w", truncate(raw, 80), err)
	}
	list, ok := doc.([]any)
	if !ok {
		return Action{}, fmt.Errorf("malformed result %q: not an array", truncate(raw, 80))
	}
	if len(list) == 0 {
		return Action{}, ErrNoAction
	}
	if err := moveAction.Validate(list[0]); err != nil {
		return Action{}, fmt.Errorf("%w: %v", ErrNoAction, err)
	}

	first := list[0].(map[string]any)
	return Action{
		Type: "move",
		X:    first["x"].(float64),
		Y:    first["y"].(float64),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
