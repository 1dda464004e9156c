// Package cooldown implements a process-wide latch that suppresses search
// calls for a fixed window after a login timeout, auto-clearing on the
// first call made once the window elapses. The behavior is intentionally
// coarse, so this stays a timestamp behind a mutex rather than reaching
// for any concurrency library.
package cooldown

import (
	"sync"
	"time"
)

// Latch is the process-global cooldown state.
type Latch struct {
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	timestamp time.Time
	set       bool
}

// New creates an unset Latch with the given cooldown window.
func New(window time.Duration) *Latch {
	return &Latch{window: window, now: time.Now}
}

// WithClock overrides the latch's clock, for tests.
func (l *Latch) WithClock(now func() time.Time) *Latch {
	l.now = now
	return l
}

// Check reports whether the cooldown is active. If set and unexpired, it
// returns (true, remaining). If set but expired, it clears the latch and
// returns (false, 0). If never set, it returns (false, 0).
func (l *Latch) Check() (active bool, remaining time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.set {
		return false, 0
	}
	elapsed := l.now().Sub(l.timestamp)
	if elapsed < l.window {
		return true, l.window - elapsed
	}
	l.set = false
	return false, 0
}

// Trip sets the latch to now. Callers trip it after a search call fails
// with an error that looks like a login or verification timeout.
func (l *Latch) Trip() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.set = true
	l.timestamp = l.now()
}

// IsSet reports whether the latch currently holds a timestamp, regardless
// of whether it has expired (tests use this to distinguish "never
// tripped" from "tripped and expired but not yet re-checked").
func (l *Latch) IsSet() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.set
}
