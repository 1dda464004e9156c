package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/wangwingzero/huge-ai-search/internal/captcha"
	"github.com/wangwingzero/huge-ai-search/internal/config"
	"github.com/wangwingzero/huge-ai-search/internal/cooldown"
	"github.com/wangwingzero/huge-ai-search/internal/coordinator"
	"github.com/wangwingzero/huge-ai-search/internal/gate"
	"github.com/wangwingzero/huge-ai-search/internal/logging"
	"github.com/wangwingzero/huge-ai-search/internal/searcher"
	"github.com/wangwingzero/huge-ai-search/internal/session"
)

type scriptedSearcher struct {
	result       searcher.Result
	err          error
	hasActive    bool
	continueUsed bool
}

func (s *scriptedSearcher) Search(ctx context.Context, query string, lang searcher.Language, imagePath string) (searcher.Result, error) {
	return s.result, s.err
}
func (s *scriptedSearcher) ContinueConversation(ctx context.Context, query string) (searcher.Result, error) {
	s.continueUsed = true
	return s.result, s.err
}
func (s *scriptedSearcher) HasActiveSession() bool { return s.hasActive }
func (s *scriptedSearcher) Close() error           { return nil }

// sequencedSearcher returns a different scripted result on each successive
// Search call, falling back to its last result once exhausted.
type sequencedSearcher struct {
	results []searcher.Result
	calls   int
}

func (s *sequencedSearcher) Search(ctx context.Context, query string, lang searcher.Language, imagePath string) (searcher.Result, error) {
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	return s.results[i], nil
}
func (s *sequencedSearcher) ContinueConversation(ctx context.Context, query string) (searcher.Result, error) {
	return s.Search(ctx, query, "", "")
}
func (s *sequencedSearcher) HasActiveSession() bool { return false }
func (s *sequencedSearcher) Close() error           { return nil }

func newTestPipeline(t *testing.T, script searcher.Searcher) *Pipeline {
	t.Helper()
	cfg := config.Default()
	cfg.CoordinatorDir = t.TempDir()
	cfg.SessionDataDir = t.TempDir()
	cfg.LogDir = t.TempDir()
	cfg.AuditDBPath = t.TempDir() + "/audit.db"
	cfg.TotalBudgetText = 5 * time.Second
	cfg.ExecTimeoutText = 2 * time.Second
	cfg.SafetyMargin = 100 * time.Millisecond
	cfg.MinExecution = 100 * time.Millisecond
	cfg.LocalWaitBudget = time.Second
	cfg.GlobalWaitBudget = time.Second
	cfg.CaptchaWaitBudget = 500 * time.Millisecond

	coord, err := coordinator.New(cfg.CoordinatorDir, cfg.SlotCount, cfg.LeaseMS, cfg.HeartbeatMS)
	if err != nil {
		t.Fatalf("coordinator.New: %v", err)
	}
	localGate := gate.New(cfg.MaxLocalSlots)
	factory := func(dataDir string) (searcher.Searcher, error) { return script, nil }
	sessions, err := session.New(cfg.MaxSessions, cfg.SessionDataDir, factory, cfg.SessionIdleTTL, cfg.SessionMaxUses)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	captchaGate := captcha.New()
	latch := cooldown.New(cfg.CooldownWindow)
	log, err := logging.New(cfg.LogDir, cfg.LogRetentionDays)
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}

	return New(cfg, coord, localGate, sessions, captchaGate, latch, log, nil, nil, "huge-ai-search setup")
}

func TestSuccessfulSearchProducesSuccessMarkdown(t *testing.T) {
	script := &scriptedSearcher{result: searcher.Result{
		Success:  true,
		AIAnswer: "HTTP/3 runs over QUIC.",
		Sources:  []searcher.Source{{Title: "RFC 9114", URL: "https://www.rfc-editor.org/rfc/rfc9114"}},
	}}
	p := newTestPipeline(t, script)

	out := p.Search(context.Background(), Request{Query: "what is HTTP/3", Language: searcher.LanguageEnUS})

	if !strings.HasPrefix(out, "## AI 搜索结果") {
		t.Errorf("expected success header, got:\n%s", out)
	}
	if !strings.Contains(out, "### AI 回答") {
		t.Error("expected AI answer section")
	}
}

func TestEmptyQueryAndImageIsInputError(t *testing.T) {
	p := newTestPipeline(t, &scriptedSearcher{})
	out := p.Search(context.Background(), Request{})
	if !strings.Contains(out, "搜索失败") {
		t.Errorf("expected failure markdown for empty input, got:\n%s", out)
	}
}

func TestCooldownShortCircuitsCall(t *testing.T) {
	script := &scriptedSearcher{}
	p := newTestPipeline(t, script)
	p.cooldown.Trip()

	out := p.Search(context.Background(), Request{Query: "anything"})
	if !strings.Contains(out, "暂时不可用") {
		t.Errorf("expected cooldown markdown, got:\n%s", out)
	}
}

func TestLoginTimeoutErrorTripsLatch(t *testing.T) {
	script := &scriptedSearcher{result: searcher.Result{Success: false, Error: "验证超时，用户未完成登录"}}
	p := newTestPipeline(t, script)

	out := p.Search(context.Background(), Request{Query: "anything"})
	if !strings.Contains(out, "❌ 搜索失败") {
		t.Errorf("expected auth-issue failure markdown, got:\n%s", out)
	}
	if !p.cooldown.IsSet() {
		t.Error("expected cooldown latch to be tripped")
	}
}

func TestGroundingOverrideClosesSession(t *testing.T) {
	script := &scriptedSearcher{result: searcher.Result{Success: true, AIAnswer: "Short stub."}}
	p := newTestPipeline(t, script)

	out := p.Search(context.Background(), Request{Query: "Quizzlex"})
	if !strings.Contains(out, "无可验证记录") {
		t.Errorf("expected canned no-record answer, got:\n%s", out)
	}
	if p.sessions.Len() != 0 {
		t.Errorf("expected session closed after grounding override, Len = %d", p.sessions.Len())
	}
}

func TestFollowUpUsesContinueConversation(t *testing.T) {
	script := &scriptedSearcher{result: searcher.Result{Success: true, AIAnswer: "follow-up answer"}, hasActive: true}
	p := newTestPipeline(t, script)

	p.Search(context.Background(), Request{Query: "first"})
	defaultID := p.sessions.DefaultID()
	out := p.Search(context.Background(), Request{Query: "more detail", FollowUp: true, SessionID: defaultID})

	if !strings.HasPrefix(out, "## AI 追问结果") {
		t.Errorf("expected follow-up header, got:\n%s", out)
	}
	if !script.continueUsed {
		t.Error("expected ContinueConversation to be used for the follow-up")
	}
}

func TestImagePathForcesNonFollowUp(t *testing.T) {
	script := &scriptedSearcher{result: searcher.Result{Success: true, AIAnswer: "image answer"}}
	p := newTestPipeline(t, script)

	out := p.Search(context.Background(), Request{Query: "describe", FollowUp: true, ImagePath: "/tmp/a.png"})
	if !strings.HasPrefix(out, "## AI 搜索结果") {
		t.Errorf("expected fresh-search header despite follow_up=true with an image, got:\n%s", out)
	}
}

func TestCaptchaKeywordReleasesGateAfterCallReturns(t *testing.T) {
	script := &sequencedSearcher{results: []searcher.Result{
		{Success: false, Error: "出现验证码，请人工处理"},
		{Success: true, AIAnswer: "recovered answer"},
	}}
	p := newTestPipeline(t, script)

	first := p.Search(context.Background(), Request{Query: "first"})
	if !strings.Contains(first, "搜索失败") {
		t.Errorf("expected failure markdown for the captcha-keyword error, got:\n%s", first)
	}
	if p.captchaGate.IsHeld() {
		t.Fatal("expected captcha gate released once the call that hit the captcha returned")
	}

	second := p.Search(context.Background(), Request{Query: "second"})
	if !strings.HasPrefix(second, "## AI 搜索结果") {
		t.Errorf("expected the next call to proceed normally instead of blocking at the captcha gate, got:\n%s", second)
	}
}

func TestGenericBrowserErrorProducesFailureMarkdown(t *testing.T) {
	script := &scriptedSearcher{result: searcher.Result{Success: false, Error: "network unreachable"}}
	p := newTestPipeline(t, script)

	out := p.Search(context.Background(), Request{Query: "anything"})
	if !strings.Contains(out, "network unreachable") {
		t.Errorf("expected verbatim error text, got:\n%s", out)
	}
	if p.cooldown.IsSet() {
		t.Error("generic error must not trip the cooldown latch")
	}
}
