package batch

import "sync"

// Guard is the process-wide single-flight flag. TryAcquire only brackets the
// check-and-set; the run itself executes outside the lock so work is never
// serialized through it. One Guard may be shared by several orchestrators
// when their runs must exclude each other (the phases of one pipeline).
type Guard struct {
	mu     sync.Mutex
	active bool
}

// TryAcquire claims the guard. It returns false without blocking when a run
// already holds it.
func (g *Guard) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active {
		return false
	}
	g.active = true
	return true
}

// Release clears the flag. Callers defer it immediately after a successful
// TryAcquire so every exit path, including panics, releases the guard.
func (g *Guard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = false
}

// Busy reports whether the guard is currently held. The answer can be stale
// by the time the caller acts on it; TryAcquire remains the authority.
func (g *Guard) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}
