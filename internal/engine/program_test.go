package engine

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/Scrimzay/botarena/internal/types"
	"github.com/Scrimzay/botarena/internal/world"
)

func testState() world.State {
	return world.State{
		Bots: map[string]world.Avatar{
			"s1": {SpawnID: "s1", BotID: "a", X: 10, Y: 20, Radius: 5},
			"s2": {SpawnID: "s2", BotID: "b", X: 30, Y: 40, Radius: 7},
		},
		Food:   []world.Food{{X: 1, Y: 2, Radius: 3}},
		Width:  600,
		Height: 500,
	}
}

func TestBuildProgram_Layout(t *testing.T) {
	bots := botsOf(bot("a", 1), bot("b", 2))
	program, err := BuildProgram(bots["a"], bots, testState(), testState())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	for _, want := range []string{
		`global._player = {"x":10,"y":20,"radius":5,"username":"user-a"};`,
		`global._otherPlayers = [{"x":30,"y":40,"radius":7,"username":"user-b"}];`,
		`global._food = [{"x":1,"y":2,"radius":3}];`,
		`global._worldWidth = 600;`,
		`global._worldHeight = 500;`,
	} {
		if !strings.Contains(program, want) {
			t.Fatalf("program lacks %s\n%s", want, program)
		}
	}

	globals := strings.Index(program, "global._player")
	code := strings.Index(program, "// bot:a")
	shim := strings.Index(program, "__botApi")
	if !(globals < code && code < shim) {
		t.Fatalf("order globals=%d code=%d shim=%d", globals, code, shim)
	}
}

func TestBuildProgram_PreviousFallsBackToCurrent(t *testing.T) {
	bots := botsOf(bot("a", 1))
	current := testState()
	previous := world.State{Bots: map[string]world.Avatar{}, Width: 600, Height: 500}

	program, err := BuildProgram(bots["a"], bots, current, previous)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(program, `global._previousState = {"me":{"x":10,"y":20,"radius":5,"username":"user-a"}`) {
		t.Fatalf("previous state is not the current view:\n%s", program)
	}
}

func TestBuildProgram_NoAvatar(t *testing.T) {
	bots := types.Bots{"c": bot("c", 3)}
	if _, err := BuildProgram(bots["c"], bots, testState(), testState()); err == nil {
		t.Fatalf("expected error for a bot without avatar")
	}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   Action
		noop   bool
		failed bool
	}{
		{name: "move", raw: `[{"type":"move","x":1.5,"y":2}]`, want: Action{Type: "move", X: 1.5, Y: 2}},
		{name: "first wins", raw: `[{"type":"move","x":1,"y":1},{"type":"move","x":9,"y":9}]`, want: Action{Type: "move", X: 1, Y: 1}},
		{name: "empty", raw: `[]`, noop: true},
		{name: "unknown type", raw: `[{"type":"split"}]`, noop: true},
		{name: "missing coordinate", raw: `[{"type":"move","x":1}]`, noop: true},
		{name: "string coordinate", raw: `[{"type":"move","x":"1","y":2}]`, noop: true},
		{name: "not an array", raw: `{"type":"move","x":1,"y":2}`, failed: true},
		{name: "not json", raw: `undefined`, failed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAction(tt.raw)
			switch {
			case tt.noop:
				if !errors.Is(err, ErrNoAction) {
					t.Fatalf("expected ErrNoAction, got %v", err)
				}
			case tt.failed:
				if err == nil || errors.Is(err, ErrNoAction) {
					t.Fatalf("expected malformed error, got %v", err)
				}
			default:
				if err != nil {
					t.Fatalf("parse: %v", err)
				}
				if got != tt.want {
					t.Fatalf("got %+v, want %+v", got, tt.want)
				}
			}
		})
	}
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	long := strings.Repeat("é", 50)
	for _, n := range []int{80, 81, 1} {
		got := truncate(long, n)
		if !utf8.ValidString(got) {
			t.Fatalf("truncate(_, %d) = %q is not valid UTF-8", n, got)
		}
		body := strings.TrimSuffix(got, "...")
		if len(body) > n || len(body) < n-1 {
			t.Fatalf("truncate(_, %d) kept %d bytes", n, len(body))
		}
	}
	if got := truncate("short", 80); got != "short" {
		t.Fatalf("short string changed: %q", got)
	}
}
