package asr

import "sync"

// Gate is the process-wide mutual-exclusion boundary around all model
// invocations. The underlying engines are not safe for concurrent entry —
// two transcription or alignment calls overlapping inside native code
// crashes the process — so every model call, from every session, goes
// through one Gate.
//
// The lock is a real OS-thread mutex, not a cooperative primitive: the
// guarded call is blocking and possibly GPU-bound, and two goroutines on
// different OS threads must never execute inside the model concurrently.
//
// There is no acquisition timeout. If a model call wedges, all sessions
// block behind it; acceptable for a local single-user tool.
type Gate struct {
	mu sync.Mutex
}

// NewGate returns a ready Gate.
func NewGate() *Gate {
	return &Gate{}
}

// With acquires the gate, runs fn, and releases on every exit path,
// including panics. The returned error is fn's own.
func (g *Gate) With(fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn()
}
