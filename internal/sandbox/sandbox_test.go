package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestIsolate(t *testing.T) *Isolate {
	t.Helper()
	s := NewIsolate(DefaultLimits())
	t.Cleanup(s.Dispose)
	return s
}

func run(t *testing.T, s *Isolate, program string) string {
	t.Helper()
	out, err := s.Run(context.Background(), program)
	if err != nil {
		t.Fatalf("run %q: %v", program, err)
	}
	return out
}

func expectScriptError(t *testing.T, err error, contains string) {
	t.Helper()
	var se *ScriptError
	if !errors.As(err, &se) {
		t.Fatalf("expected ScriptError, got %v", err)
	}
	if !strings.Contains(se.Error(), contains) {
		t.Fatalf("error %q does not mention %q", se.Error(), contains)
	}
}

func TestIsolate_RunsCode(t *testing.T) {
	s := newTestIsolate(t)
	if got := run(t, s, "1 + 1"); got != "2" {
		t.Fatalf("1 + 1 = %q", got)
	}
	if got := run(t, s, "Math.sqrt(4)"); got != "2" {
		t.Fatalf("Math.sqrt(4) = %q", got)
	}
}

func TestIsolate_ReturnsStringifiedObjects(t *testing.T) {
	s := newTestIsolate(t)
	out := run(t, s, "JSON.stringify({ a: 1, b: 2 })")
	var got map[string]int
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got["a"] != 1 || got["b"] != 2 {
		t.Fatalf("got %v", got)
	}
}

func TestIsolate_ThrownException(t *testing.T) {
	s := newTestIsolate(t)
	_, err := s.Run(context.Background(), `(() => { throw Error("I am a test exception") })()`)
	expectScriptError(t, err, "I am a test exception")
}

func TestIsolate_NoHostCapabilities(t *testing.T) {
	s := newTestIsolate(t)
	cases := map[string]string{
		"JSON.stringify(window.location)": "window is not defined",
		"fetch('https://example.com')":    "fetch is not defined",
		"setTimeout(() => {}, 10)":        "setTimeout is not defined",
		"require('fs')":                   "require is not defined",
	}
	for program, want := range cases {
		_, err := s.Run(context.Background(), program)
		expectScriptError(t, err, want)
	}
}

func TestIsolate_MemoryLimit(t *testing.T) {
	s := NewIsolate(Limits{Timeout: 10 * time.Second, MemoryBytes: 64 << 20})
	defer s.Dispose()

	_, err := s.Run(context.Background(), `
		const chunks = [];
		while (true) { chunks.push(new Array(100000).fill(1.5)); }
	`)
	if !errors.Is(err, ErrMemoryLimit) {
		t.Fatalf("expected ErrMemoryLimit, got %v", err)
	}

	// the isolate is replaced and keeps working
	if got := run(t, s, "2 * 21"); got != "42" {
		t.Fatalf("after memory limit: %q", got)
	}
}

func TestIsolate_MemoryLimitCountsTypedArrays(t *testing.T) {
	s := NewIsolate(Limits{Timeout: 10 * time.Second, MemoryBytes: 64 << 20})
	defer s.Dispose()

	_, err := s.Run(context.Background(), `const a = new Float64Array(2e7); a[5] = 1; "done:" + a.length`)
	if !errors.Is(err, ErrMemoryLimit) {
		t.Fatalf("expected ErrMemoryLimit for a 160MB typed array, got %v", err)
	}

	_, err = s.Run(context.Background(), `
		const held = [];
		while (true) { held.push(new ArrayBuffer(8 << 20)); }
	`)
	if !errors.Is(err, ErrMemoryLimit) {
		t.Fatalf("expected ErrMemoryLimit for growing buffers, got %v", err)
	}

	// small buffers stay within the limit
	if got := run(t, s, "new Uint8Array(1024).length"); got != "1024" {
		t.Fatalf("small typed array: %q", got)
	}
}

func TestIsolate_Timeout(t *testing.T) {
	s := newTestIsolate(t)
	start := time.Now()
	_, err := s.Run(context.Background(), "while (true) {}")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("timeout took %v", elapsed)
	}
	if got := run(t, s, "'still alive'"); got != "still alive" {
		t.Fatalf("after timeout: %q", got)
	}
}

func TestIsolate_ContextCancel(t *testing.T) {
	s := NewIsolate(Limits{Timeout: 10 * time.Second, MemoryBytes: 64 << 20})
	defer s.Dispose()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Run(ctx, "while (true) {}")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestIsolate_FreshGlobalsPerRun(t *testing.T) {
	s := newTestIsolate(t)
	if got := run(t, s, "const a = 39; a"); got != "39" {
		t.Fatalf("got %q", got)
	}
	_, err := s.Run(context.Background(), "a")
	expectScriptError(t, err, "a is not defined")

	if got := run(t, s, "Array.prototype.foo = 42; [].foo"); got != "42" {
		t.Fatalf("got %q", got)
	}
	if got := run(t, s, "[].foo"); got != "undefined" {
		t.Fatalf("prototype leaked between runs: %q", got)
	}
}

func TestIsolate_Disposed(t *testing.T) {
	s := NewIsolate(DefaultLimits())
	s.Dispose()
	s.Dispose()
	if !s.Disposed() {
		t.Fatalf("Disposed() = false")
	}
	if _, err := s.Run(context.Background(), "1"); !errors.Is(err, ErrDisposed) {
		t.Fatalf("expected ErrDisposed, got %v", err)
	}
}

func TestPool_SlowProgramDoesNotBlockOthers(t *testing.T) {
	p := NewPool(2, DefaultLimits())
	defer p.Close()

	var wg sync.WaitGroup
	var slowErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, slowErr = p.Run(context.Background(), "while (true) {}")
	}()

	start := time.Now()
	out, err := p.Run(context.Background(), "1 + 1")
	elapsed := time.Since(start)
	if err != nil || out != "2" {
		t.Fatalf("fast program: %q, %v", out, err)
	}
	if elapsed > 250*time.Millisecond {
		t.Fatalf("fast program took %v", elapsed)
	}

	wg.Wait()
	if !errors.Is(slowErr, ErrTimeout) {
		t.Fatalf("slow program: %v", slowErr)
	}
}

func TestPool_QueuesBeyondSize(t *testing.T) {
	p := NewPool(2, DefaultLimits())
	defer p.Close()

	const n = 10
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Run(context.Background(), "[1, 2, 3].map(x => x * 2).join(',')")
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		if errs[i] != nil || results[i] != "2,4,6" {
			t.Fatalf("run %d: %q, %v", i, results[i], errs[i])
		}
	}
}

func TestPool_Closed(t *testing.T) {
	p := NewPool(1, DefaultLimits())
	p.Close()
	p.Close()
	if _, err := p.Run(context.Background(), "1"); !errors.Is(err, ErrDisposed) {
		t.Fatalf("expected ErrDisposed, got %v", err)
	}
}
