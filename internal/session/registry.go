// Package session is a named, LRU-capped pool of reusable Searcher handles
// with idle/usage TTL and data-directory cleanup. It leans on
// hashicorp/golang-lru/v2's OnEvict callback to close and clean up the
// least-recently-used entry automatically rather than hand-rolling that
// bookkeeping.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/google/uuid"
	"github.com/wangwingzero/huge-ai-search/internal/searcher"
)

// Session binds a client-visible id to an exclusively-owned Searcher.
type Session struct {
	ID          string
	Searcher    searcher.Searcher
	LastAccess  int64 // monotonic ms
	SearchCount int
}

// Logger is the minimal logging seam the registry needs; satisfied by
// *logging.Logger without importing it directly (keeps this package
// independent of the logging format's concrete type for testing).
type Logger interface {
	Info(scope, format string, args ...any)
	Error(scope, format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, string, ...any)  {}
func (nopLogger) Error(string, string, ...any) {}

// Registry owns every resident Session.
type Registry struct {
	mu        sync.Mutex
	cache     *lru.Cache[string, *Session]
	dataDir   string
	factory   searcher.Factory
	idleTTL   time.Duration
	maxUses   int
	defaultID string
	now       func() int64
	log       Logger

	stop chan struct{}
}

// Option configures a Registry at construction.
type Option func(*Registry)

// WithLogger routes registry diagnostics to log.
func WithLogger(log Logger) Option {
	return func(r *Registry) { r.log = log }
}

// WithClock overrides the monotonic-ms clock, for tests.
func WithClock(now func() int64) Option {
	return func(r *Registry) { r.now = now }
}

// New creates a Registry bounded at maxSessions, rooted at dataDir for
// per-session data directories, using factory to construct new Searchers.
func New(maxSessions int, dataDir string, factory searcher.Factory, idleTTL time.Duration, maxUses int, opts ...Option) (*Registry, error) {
	r := &Registry{
		dataDir: dataDir,
		factory: factory,
		idleTTL: idleTTL,
		maxUses: maxUses,
		now:     func() int64 { return time.Now().UnixMilli() },
		log:     nopLogger{},
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	cache, err := lru.NewWithEvict[string, *Session](maxSessions, func(id string, s *Session) {
		r.destroy(id, s)
	})
	if err != nil {
		return nil, fmt.Errorf("session: new lru: %w", err)
	}
	r.cache = cache
	return r, nil
}

// GetOrCreate returns the resident session named preferredID, touching its
// last_access, or allocates a new one if it isn't resident (evicting the
// LRU entry first if the registry is already at capacity — handled by the
// underlying LRU's Add, which evicts automatically).
func (r *Registry) GetOrCreate(preferredID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if preferredID != "" {
		if s, ok := r.cache.Get(preferredID); ok {
			s.LastAccess = r.now()
			return s, nil
		}
	}

	id := preferredID
	if id == "" {
		id = generateID()
	}

	dir := filepath.Join(r.dataDir, id)
	sch, err := r.factory(dir)
	if err != nil {
		return nil, fmt.Errorf("session: create searcher for %s: %w", id, err)
	}
	s := &Session{ID: id, Searcher: sch, LastAccess: r.now()}
	r.cache.Add(id, s)
	return s, nil
}

// Close closes the searcher (tolerating errors), removes the entry, clears
// defaultID if it matched, and recursively deletes the data directory.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	r.cache.Remove(id) // triggers destroy via OnEvict
	if r.defaultID == id {
		r.defaultID = ""
	}
	r.mu.Unlock()
}

// destroy runs exactly once per entry, whether removed explicitly or
// LRU-evicted; both paths must behave identically.
func (r *Registry) destroy(id string, s *Session) {
	if err := s.Searcher.Close(); err != nil {
		r.log.Error("session", "close searcher %s: %v", id, err)
	}
	dir := filepath.Join(r.dataDir, id)
	if err := os.RemoveAll(dir); err != nil {
		r.log.Error("session", "remove data dir for %s: %v", id, err)
	}
}

// Touch updates last_access and, when incrementUses is true, increments
// search_count by one; the pipeline calls this on entry (incrementing) and
// on exit (not incrementing) of each call.
func (r *Registry) Touch(id string, incrementUses bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.cache.Get(id); ok {
		s.LastAccess = r.now()
		if incrementUses {
			s.SearchCount++
		}
	}
}

// DefaultID returns the pipeline's single default-session pointer.
func (r *Registry) DefaultID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.defaultID
}

// SetDefaultID sets the pointer used when the caller omitted a session id
// and did not request a follow-up.
func (r *Registry) SetDefaultID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultID = id
}

// Len reports the current resident session count.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Len()
}

// Sweep closes every session idle longer than idleTTL or at/over maxUses.
// Intended to run on a periodic background timer via StartSweeper.
func (r *Registry) Sweep() {
	r.mu.Lock()
	now := r.now()
	var stale []string
	for _, id := range r.cache.Keys() {
		s, ok := r.cache.Peek(id)
		if !ok {
			continue
		}
		if now-s.LastAccess > r.idleTTL.Milliseconds() || s.SearchCount >= r.maxUses {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		r.Close(id)
	}
}

// StartSweeper launches a background goroutine running Sweep every
// interval until Stop is called.
func (r *Registry) StartSweeper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}

// Stop halts the background sweeper, if started.
func (r *Registry) Stop() {
	close(r.stop)
}

func generateID() string {
	return fmt.Sprintf("session_%d_%s", time.Now().UnixNano(), shortUUID())
}

func shortUUID() string {
	id := uuid.NewString()
	// Keep the visible id short; collision risk is irrelevant since the
	// full timestamp component already disambiguates.
	return id[:8]
}
