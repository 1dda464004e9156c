// Package captcha coordinates CAPTCHA recovery across concurrent search
// calls in one process: the first caller to hit a CAPTCHA becomes the
// holder and drives headed recovery, while every other caller waits for
// that holder to release before retrying its own search.
package captcha

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Outcome is the result of TryAcquire.
type Outcome int

const (
	// Acquired means this call owns the recovery window.
	Acquired Outcome = iota
	// Waited means someone else drove recovery; the caller should retry
	// its search now that it has returned.
	Waited
	// TimedOut means neither happened within the budget.
	TimedOut
)

const singleflightKey = "captcha-recovery"

// Gate serializes human-interactive CAPTCHA recovery across goroutines
// within this process. Other processes on the same host rely on the
// persisted browser authentication state updating once recovery
// completes, rather than on any direct signal from this gate.
type Gate struct {
	group singleflight.Group

	mu     sync.Mutex
	held   bool
	doneCh chan struct{}
}

// New creates an unheld gate.
func New() *Gate {
	return &Gate{}
}

// TryAcquire attempts to join or start a recovery window. The first
// caller after the gate is free gets Acquired and must eventually call
// Release when recovery finishes. Concurrent callers join the same
// singleflight call and get Waited once Release closes the shared done
// channel. If timeout elapses before either happens, it returns TimedOut.
func (g *Gate) TryAcquire(timeout time.Duration) Outcome {
	g.mu.Lock()
	if !g.held {
		g.held = true
		done := make(chan struct{})
		g.doneCh = done
		// DoChan registers the in-flight call and returns immediately (it
		// runs fn in its own goroutine), so it's safe to call while still
		// holding mu: this guarantees no waiter's DoChan call can race
		// ahead of this registration and wrongly become the leader.
		g.group.DoChan(singleflightKey, func() (any, error) {
			<-done
			return nil, nil
		})
		g.mu.Unlock()
		return Acquired
	}
	g.mu.Unlock()

	ch := g.group.DoChan(singleflightKey, func() (any, error) {
		// Never actually executes for a waiter: it joins the holder's
		// in-flight call via the shared key instead.
		return nil, nil
	})
	select {
	case <-ch:
		return Waited
	case <-time.After(timeout):
		return TimedOut
	}
}

// Release ends the held recovery window, waking every waiter that called
// TryAcquire while it was held. Safe to call even if not currently held.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.held {
		return
	}
	g.held = false
	if g.doneCh != nil {
		close(g.doneCh)
		g.doneCh = nil
	}
}

// IsHeld reports whether a recovery window is currently in progress.
func (g *Gate) IsHeld() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held
}
