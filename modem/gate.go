package modem

import (
	"context"
	"sync"
	"time"
)

// Gate is a resettable single-slot signal. The notification handler sets it
// when registration is observed; bring-up code waits on it.
type Gate struct {
	mu  sync.Mutex
	ch  chan struct{}
	set bool
}

// NewGate returns an unset Gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Set marks the gate as set and releases any waiter. Setting a set gate is a
// no-op.
func (g *Gate) Set() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.set {
		return
	}
	g.set = true
	close(g.ch)
}

// Reset returns the gate to unset so a stale signal cannot satisfy the next
// wait.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.set {
		return
	}
	g.set = false
	g.ch = make(chan struct{})
}

// IsSet reports whether the gate is set.
func (g *Gate) IsSet() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.set
}

// Wait blocks until the gate is set, timeout elapses or ctx is done. A
// non-positive timeout waits on ctx alone. It returns ErrRegistrationTimeout
// on timeout and the context error on cancellation.
func (g *Gate) Wait(ctx context.Context, timeout time.Duration) error {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()

	// Checked first so a set gate never loses to an expired timer.
	select {
	case <-ch:
		return nil
	default:
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-ch:
		return nil
	case <-expired:
		return ErrRegistrationTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
