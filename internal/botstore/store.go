package botstore

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Scrimzay/botarena/internal/types"
)

var ErrInvalidSubmission = errors.New("invalid bot submission")

// Store holds the active bot set. Readers get an immutable snapshot; every
// change publishes a new one and notifies subscribers with it.
type Store struct {
	mu   sync.Mutex // serializes writers and subscriber changes
	bots atomic.Pointer[types.Bots]
	subs map[int]func(types.Bots)
	next int
	dir  string
}

// New builds a store. When dir is not empty, bots saved there are loaded and
// every submission is written back to it.
func New(dir string) (*Store, error) {
	s := &Store{
		subs: make(map[int]func(types.Bots)),
		dir:  dir,
	}
	initial := types.Bots{}
	if dir != "" {
		loaded, err := loadDir(dir)
		if err != nil {
			return nil, err
		}
		initial = loaded
		log.Printf("botstore: loaded %d bots from %s", len(initial), dir)
	}
	s.bots.Store(&initial)
	return s, nil
}

func (s *Store) Bots() types.Bots {
	return *s.bots.Load()
}

func (s *Store) Get(id string) (types.BotCode, bool) {
	bot, ok := s.Bots()[id]
	return bot, ok
}

// Subscribe registers fn for future snapshots. The returned func removes it.
func (s *Store) Subscribe(fn func(types.Bots)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Submit stores code for username. Each user owns at most one bot, so a
// resubmission keeps the existing bot id.
func (s *Store) Submit(username string, userID int64, code string) (types.BotCode, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.ContainsAny(username, `/\`) {
		return types.BotCode{}, fmt.Errorf("%w: bad username %q", ErrInvalidSubmission, username)
	}
	if userID < 0 {
		return types.BotCode{}, fmt.Errorf("%w: negative user id %d", ErrInvalidSubmission, userID)
	}
	if strings.TrimSpace(code) == "" {
		return types.BotCode{}, fmt.Errorf("%w: empty code", ErrInvalidSubmission)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.Bots()
	id := ""
	for _, bot := range current {
		if bot.Username == username {
			id = bot.ID
			break
		}
	}
	if id == "" {
		id = strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}

	bot := types.BotCode{ID: id, Code: code, Username: username, UserID: userID}
	if s.dir != "" {
		if err := saveBot(s.dir, bot); err != nil {
			return types.BotCode{}, err
		}
	}

	next := current.Clone()
	next[id] = bot
	s.publishLocked(next)
	return bot, nil
}

// Remove drops a bot from the active set. Saved code on disk is kept.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.Bots()
	if _, ok := current[id]; !ok {
		return false
	}
	next := current.Clone()
	delete(next, id)
	s.publishLocked(next)
	return true
}

func (s *Store) publishLocked(next types.Bots) {
	s.bots.Store(&next)
	for _, fn := range s.subs {
		fn(next)
	}
}

func fileName(bot types.BotCode) string {
	return fmt.Sprintf("%d-%s-%s.js", bot.UserID, bot.ID, bot.Username)
}

func saveBot(dir string, bot types.BotCode) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, fileName(bot)), []byte(bot.Code), 0o644)
}

// parseFileName reverses fileName. Usernames may contain dashes, ids and user
// ids may not.
func parseFileName(name string) (userID int64, id, username string, err error) {
	base, ok := strings.CutSuffix(name, ".js")
	if !ok {
		return 0, "", "", fmt.Errorf("not a bot file: %s", name)
	}
	parts := strings.SplitN(base, "-", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return 0, "", "", fmt.Errorf("invalid bot code file: %s", name)
	}
	userID, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", "", fmt.Errorf("invalid bot code file: %s: %w", name, err)
	}
	return userID, parts[1], parts[2], nil
}

func loadDir(dir string) (types.Bots, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return types.Bots{}, nil
	}
	if err != nil {
		return nil, err
	}

	bots := types.Bots{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		userID, id, username, err := parseFileName(e.Name())
		if err != nil {
			return nil, err
		}
		code, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if len(code) == 0 {
			return nil, fmt.Errorf("invalid bot code file: %s: empty", e.Name())
		}
		bots[id] = types.BotCode{ID: id, Code: string(code), Username: username, UserID: userID}
	}
	return bots, nil
}
