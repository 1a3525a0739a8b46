package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Scrimzay/botarena/internal/world"
)

const writeWait = time.Second

var errUnknownConn = errors.New("connection not registered")

type stateMessage struct {
	Type  string      `json:"type"`
	Tick  uint64      `json:"tick"`
	State world.State `json:"state"`
}

// Broadcaster pushes the published world snapshot to every websocket client
// at a fixed interval.
type Broadcaster struct {
	game     Game
	interval time.Duration

	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.RWMutex
	writeMu    map[*websocket.Conn]*sync.Mutex // per-conn write locks
}

func NewBroadcaster(game Game, interval time.Duration) *Broadcaster {
	return &Broadcaster{
		game:       game,
		interval:   interval,
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		writeMu:    make(map[*websocket.Conn]*sync.Mutex),
	}
}

// Run serves clients until ctx is done, then closes every connection.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer func() {
		ticker.Stop()
		close(b.done)
		b.closeAll()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-b.register:
			b.mu.Lock()
			b.clients[conn] = true
			b.writeMu[conn] = &sync.Mutex{}
			b.mu.Unlock()

			// new clients get the current state right away
			if err := b.SendState(conn); err != nil {
				log.Println("Initial send error:", err)
				b.drop(conn)
			}

		case conn := <-b.unregister:
			b.drop(conn)

		case <-ticker.C:
			b.broadcast()
		}
	}
}

// Register adds conn. It reports false once the broadcaster has stopped.
func (b *Broadcaster) Register(conn *websocket.Conn) bool {
	select {
	case b.register <- conn:
		return true
	case <-b.done:
		return false
	}
}

func (b *Broadcaster) Unregister(conn *websocket.Conn) {
	select {
	case b.unregister <- conn:
	case <-b.done:
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// SendState writes the current snapshot to a single client.
func (b *Broadcaster) SendState(conn *websocket.Conn) error {
	data, err := b.stateMessage()
	if err != nil {
		return err
	}
	return b.write(conn, data)
}

func (b *Broadcaster) broadcast() {
	data, err := b.stateMessage()
	if err != nil {
		log.Println("State marshal error:", err)
		return
	}

	b.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(b.clients))
	for conn := range b.clients {
		conns = append(conns, conn)
	}
	b.mu.RUnlock()

	for _, conn := range conns {
		if err := b.write(conn, data); err != nil {
			log.Println("Broadcast error:", err)
			b.drop(conn)
		}
	}
}

func (b *Broadcaster) stateMessage() ([]byte, error) {
	return json.Marshal(stateMessage{
		Type:  "state",
		Tick:  b.game.Tick(),
		State: b.game.State(),
	})
}

func (b *Broadcaster) write(conn *websocket.Conn, data []byte) error {
	b.mu.RLock()
	mu, ok := b.writeMu[conn]
	b.mu.RUnlock()
	if !ok {
		return errUnknownConn
	}

	mu.Lock()
	defer mu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (b *Broadcaster) drop(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[conn]; ok {
		delete(b.clients, conn)
		delete(b.writeMu, conn)
		conn.Close()
	}
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		conn.Close()
	}
	b.clients = make(map[*websocket.Conn]bool)
	b.writeMu = make(map[*websocket.Conn]*sync.Mutex)
}
