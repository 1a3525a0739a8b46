// Package sandbox runs untrusted bot programs in isolated V8 contexts with a
// wall-clock and heap ceiling. Nothing from the host is exposed to a program;
// its only input is its own source text.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrTimeout     = errors.New("script execution timed out")
	ErrMemoryLimit = errors.New("isolate was disposed during execution due to memory limit")
	ErrDisposed    = errors.New("sandbox was disposed, create a new instance to run code")
)

// Runner executes one program and returns its completion value as text.
type Runner interface {
	Run(ctx context.Context, program string) (string, error)
}

type Limits struct {
	Timeout     time.Duration
	MemoryBytes uint64
}

func DefaultLimits() Limits {
	return Limits{
		Timeout:     75 * time.Millisecond,
		MemoryBytes: 64 << 20,
	}
}

// ScriptError is an exception thrown by the program itself, including syntax
// and reference errors.
type ScriptError struct {
	Message  string
	Location string
	Stack    string
}

func (e *ScriptError) Error() string {
	if e.Location == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (at %s)", e.Message, e.Location)
}
