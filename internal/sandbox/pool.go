package sandbox

import (
	"context"
	"sync"
)

// Pool spreads programs over a fixed set of isolates. Up to Size programs run
// at once; further callers wait for a free isolate.
type Pool struct {
	idle    chan *Isolate
	members []*Isolate
	closed  chan struct{}
	once    sync.Once
}

func NewPool(size int, limits Limits) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		idle:    make(chan *Isolate, size),
		members: make([]*Isolate, 0, size),
		closed:  make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		m := NewIsolate(limits)
		p.members = append(p.members, m)
		p.idle <- m
	}
	return p
}

func (p *Pool) Size() int { return len(p.members) }

func (p *Pool) Run(ctx context.Context, program string) (string, error) {
	select {
	case <-p.closed:
		return "", ErrDisposed
	default:
	}

	var m *Isolate
	select {
	case m = <-p.idle:
	case <-p.closed:
		return "", ErrDisposed
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { p.idle <- m }()

	return m.Run(ctx, program)
}

// Close disposes every isolate. Runs in flight finish first.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.closed)
		for _, m := range p.members {
			m.Dispose()
		}
	})
}
