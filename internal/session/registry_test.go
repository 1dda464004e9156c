package session

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/wangwingzero/huge-ai-search/internal/searcher"
)

type fakeSearcher struct {
	closed bool
}

func (f *fakeSearcher) Search(ctx context.Context, query string, lang searcher.Language, imagePath string) (searcher.Result, error) {
	return searcher.Result{Success: true, Query: query, AIAnswer: "ok"}, nil
}
func (f *fakeSearcher) ContinueConversation(ctx context.Context, query string) (searcher.Result, error) {
	return searcher.Result{Success: true, Query: query, AIAnswer: "ok"}, nil
}
func (f *fakeSearcher) HasActiveSession() bool { return true }
func (f *fakeSearcher) Close() error           { f.closed = true; return nil }

func fakeFactory() (searcher.Factory, *[]*fakeSearcher) {
	var created []*fakeSearcher
	return func(dataDir string) (searcher.Searcher, error) {
		s := &fakeSearcher{}
		created = append(created, s)
		return s, nil
	}, &created
}

var idPattern = regexp.MustCompile(`^session_\d+_[a-z0-9]+$`)

func TestGetOrCreateGeneratesMatchingID(t *testing.T) {
	factory, _ := fakeFactory()
	r, err := New(10, t.TempDir(), factory, time.Hour, 50)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s, err := r.GetOrCreate("")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !idPattern.MatchString(s.ID) {
		t.Errorf("id %q does not match expected pattern", s.ID)
	}
}

func TestGetOrCreateReturnsResidentSessionByID(t *testing.T) {
	factory, created := fakeFactory()
	r, err := New(10, t.TempDir(), factory, time.Hour, 50)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s1, _ := r.GetOrCreate("fixed")
	s2, err := r.GetOrCreate("fixed")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if s1 != s2 {
		t.Error("expected same session for repeated preferred id")
	}
	if len(*created) != 1 {
		t.Errorf("expected exactly one searcher constructed, got %d", len(*created))
	}
}

func TestOverflowEvictsSmallestLastAccess(t *testing.T) {
	factory, created := fakeFactory()
	r, err := New(2, t.TempDir(), factory, time.Hour, 50)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.GetOrCreate("a")
	r.GetOrCreate("b")
	r.GetOrCreate("c") // should evict "a"

	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}
	if !(*created)[0].closed {
		t.Error("expected oldest session's searcher to be closed on eviction")
	}
}

func TestCloseRemovesSessionAndClearsDefault(t *testing.T) {
	factory, created := fakeFactory()
	r, err := New(10, t.TempDir(), factory, time.Hour, 50)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s, _ := r.GetOrCreate("mine")
	r.SetDefaultID(s.ID)

	r.Close(s.ID)

	if r.Len() != 0 {
		t.Errorf("Len after close = %d, want 0", r.Len())
	}
	if r.DefaultID() != "" {
		t.Errorf("DefaultID after closing it = %q, want empty", r.DefaultID())
	}
	if !(*created)[0].closed {
		t.Error("expected searcher to be closed")
	}
}

func TestSweepClosesIdleAndOverusedSessions(t *testing.T) {
	factory, _ := fakeFactory()
	clock := int64(1000)
	r, err := New(10, t.TempDir(), factory, 100*time.Millisecond, 2, WithClock(func() int64 { return clock }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.GetOrCreate("idle")
	r.Touch("idle", false)

	clock += 1000 // far beyond the 100ms idle TTL
	r.Sweep()

	if r.Len() != 0 {
		t.Errorf("expected idle session swept, Len = %d", r.Len())
	}

	r.GetOrCreate("busy")
	r.Touch("busy", true)
	r.Touch("busy", true) // reaches the maxUses of 2 while still fresh
	r.Sweep()

	if r.Len() != 0 {
		t.Errorf("expected overused session swept, Len = %d", r.Len())
	}
}

func TestSearchCountIncrementedExactlyOncePerTouch(t *testing.T) {
	factory, _ := fakeFactory()
	r, err := New(10, t.TempDir(), factory, time.Hour, 50)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s, _ := r.GetOrCreate("x")
	r.Touch(s.ID, true)
	r.Touch(s.ID, true)
	if s.SearchCount != 2 {
		t.Errorf("SearchCount = %d, want 2", s.SearchCount)
	}
}
