package engine

import "sync"

// BotErrors keeps the most recent failure of each bot's program.
type BotErrors struct {
	mu    sync.RWMutex
	byBot map[string]string
}

func NewBotErrors() *BotErrors {
	return &BotErrors{byBot: make(map[string]string)}
}

func (b *BotErrors) Set(botID, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byBot[botID] = msg
}

// Clear forgets botID's error after a clean run.
func (b *BotErrors) Clear(botID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.byBot, botID)
}

func (b *BotErrors) Get(botID string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	msg, ok := b.byBot[botID]
	return msg, ok
}
