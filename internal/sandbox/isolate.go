package sandbox

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"rogchap.com/v8go"
)

const memoryPollInterval = 2 * time.Millisecond

// Isolate is a single V8 isolate. Every Run gets a brand new context, so no
// global binding or prototype change survives between runs. An isolate runs one
// program at a time; concurrent callers queue on it.
type Isolate struct {
	mu       sync.Mutex
	iso      *v8go.Isolate
	limits   Limits
	disposed bool
}

func NewIsolate(limits Limits) *Isolate {
	return &Isolate{
		iso:    v8go.NewIsolate(),
		limits: limits,
	}
}

type outcome struct {
	value string
	err   error
}

func (s *Isolate) Run(ctx context.Context, program string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return "", ErrDisposed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	baseline := s.memoryUsed()
	v8ctx := v8go.NewContext(s.iso)

	done := make(chan outcome, 1)
	go func() {
		val, err := v8ctx.RunScript(program, "bot.js")
		if err != nil {
			done <- outcome{err: err}
			return
		}
		done <- outcome{value: val.String()}
	}()

	timeout := time.NewTimer(s.limits.Timeout)
	defer timeout.Stop()
	poll := time.NewTicker(memoryPollInterval)
	defer poll.Stop()

	var reason error
	for reason == nil {
		select {
		case out := <-done:
			// one large allocation can finish between two polls
			if s.overLimit(baseline) {
				v8ctx.Close()
				s.reset()
				return "", ErrMemoryLimit
			}
			v8ctx.Close()
			if out.err != nil {
				return "", scriptError(out.err)
			}
			return out.value, nil
		case <-timeout.C:
			reason = ErrTimeout
		case <-ctx.Done():
			reason = ctx.Err()
		case <-poll.C:
			// statistics are read while the script runs; the numbers are
			// approximate but only need to catch runaway growth
			if s.overLimit(baseline) {
				reason = ErrMemoryLimit
			}
		}
	}

	s.iso.TerminateExecution()
	<-done
	v8ctx.Close()
	s.reset()
	return "", reason
}

// memoryUsed counts the JS heap plus external memory, which holds ArrayBuffer
// and typed array backing stores.
func (s *Isolate) memoryUsed() uint64 {
	stats := s.iso.GetHeapStatistics()
	return stats.UsedHeapSize + stats.ExternalMemory
}

func (s *Isolate) overLimit(baseline uint64) bool {
	used := s.memoryUsed()
	return used > baseline && used-baseline > s.limits.MemoryBytes
}

// reset throws away an isolate that was interrupted mid-script.
func (s *Isolate) reset() {
	s.iso.Dispose()
	s.iso = v8go.NewIsolate()
}

func (s *Isolate) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.disposed = true
	s.iso.Dispose()
}

func (s *Isolate) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

func scriptError(err error) error {
	var jsErr *v8go.JSError
	if errors.As(err, &jsErr) {
		return &ScriptError{
			Message:  jsErr.Message,
			Location: jsErr.Location,
			Stack:    jsErr.StackTrace,
		}
	}
	log.Printf("sandbox: non-script error from v8: %v", err)
	return &ScriptError{Message: err.Error()}
}
