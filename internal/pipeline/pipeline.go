// Package pipeline is the single place that sequences a search tool call
// end to end: cooldown check, CAPTCHA wait, local concurrency slot, global
// concurrency slot, session lookup, execution against the browser
// subsystem, grounding policy, CAPTCHA retry, login-timeout handling,
// response rendering, and slot release.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wangwingzero/huge-ai-search/internal/audit"
	"github.com/wangwingzero/huge-ai-search/internal/captcha"
	"github.com/wangwingzero/huge-ai-search/internal/config"
	"github.com/wangwingzero/huge-ai-search/internal/cooldown"
	"github.com/wangwingzero/huge-ai-search/internal/coordinator"
	"github.com/wangwingzero/huge-ai-search/internal/gate"
	"github.com/wangwingzero/huge-ai-search/internal/grounding"
	"github.com/wangwingzero/huge-ai-search/internal/logging"
	"github.com/wangwingzero/huge-ai-search/internal/markdown"
	"github.com/wangwingzero/huge-ai-search/internal/notify"
	"github.com/wangwingzero/huge-ai-search/internal/searcher"
	"github.com/wangwingzero/huge-ai-search/internal/searcherr"
	"github.com/wangwingzero/huge-ai-search/internal/session"
	"github.com/wangwingzero/huge-ai-search/internal/urlhygiene"
)

// Request is the normalized shape of an incoming tool call.
type Request struct {
	Query       string
	Language    searcher.Language
	FollowUp    bool
	SessionID   string
	ImagePath   string
	CreateImage bool
}

// Pipeline owns every gate, registry, and latch in the process and is the
// only thing that mutates them.
type Pipeline struct {
	cfg         config.Config
	coordinator *coordinator.Coordinator
	localGate   *gate.Gate
	sessions    *session.Registry
	captchaGate *captcha.Gate
	cooldown    *cooldown.Latch
	log         *logging.Logger
	auditLog    *audit.Log   // nil disables audit recording
	notifier    *notify.Notifier

	setupCmd string
	now      func() time.Time
}

// New wires every gate into one Pipeline.
func New(
	cfg config.Config,
	coord *coordinator.Coordinator,
	localGate *gate.Gate,
	sessions *session.Registry,
	captchaGate *captcha.Gate,
	cooldownLatch *cooldown.Latch,
	log *logging.Logger,
	auditLog *audit.Log,
	notifier *notify.Notifier,
	setupCmd string,
) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		coordinator: coord,
		localGate:   localGate,
		sessions:    sessions,
		captchaGate: captchaGate,
		cooldown:    cooldownLatch,
		log:         log,
		auditLog:    auditLog,
		notifier:    notifier,
		setupCmd:    setupCmd,
		now:         time.Now,
	}
}

// Search runs the full 14-phase pipeline for one tool call.
func (p *Pipeline) Search(ctx context.Context, req Request) string {
	start := p.now()

	// Phase 1: input normalize.
	req.Query = strings.TrimSpace(req.Query)
	req.ImagePath = strings.TrimSpace(req.ImagePath)
	if req.Query == "" && req.ImagePath == "" {
		return markdown.Failure(markdown.FailureInput{ErrorText: "查询内容和图片路径均为空"})
	}
	if req.ImagePath != "" {
		req.FollowUp = false
	}
	if req.Language == "" {
		req.Language = searcher.DefaultLanguage
	}

	// Phase 2: cooldown check.
	if active, remaining := p.cooldown.Check(); active {
		mins := int(remaining.Minutes())
		secs := int(remaining.Seconds()) - mins*60
		p.record("", req.Query, audit.OutcomeCooldown, p.now().Sub(start))
		return markdown.Cooldown(mins, secs)
	}

	// Phase 3: CAPTCHA wait.
	if p.captchaGate.IsHeld() {
		switch p.captchaGate.TryAcquire(p.cfg.CaptchaWaitBudget) {
		case captcha.TimedOut:
			p.record("", req.Query, audit.OutcomeBusy, p.now().Sub(start))
			return markdown.Failure(markdown.FailureInput{ErrorText: "当前正在等待人工完成验证码验证，请稍后重试"})
		case captcha.Waited:
			// proceed; browser layer will see post-recovery cookie state
		case captcha.Acquired:
			// we are now the (new) holder; release when this call's own
			// browser work finishes, whether or not it hits a CAPTCHA.
			defer p.captchaGate.Release()
		}
	}

	// Phase 4: local slot.
	if !p.localGate.Acquire(p.cfg.LocalWaitBudget) {
		p.record("", req.Query, audit.OutcomeBusy, p.now().Sub(start))
		return markdown.Failure(markdown.FailureInput{ErrorText: "本进程内并发搜索已达上限，请稍后重试"})
	}
	defer p.localGate.Release()

	// Phase 5: global slot.
	lease := p.coordinator.Acquire(p.cfg.GlobalWaitBudget)
	if lease == nil {
		p.record("", req.Query, audit.OutcomeBusy, p.now().Sub(start))
		return markdown.Failure(markdown.FailureInput{ErrorText: "主机上并发搜索已达上限，请稍后重试"})
	}
	defer p.coordinator.Release(lease)

	// Phase 6: session acquisition. A non-follow-up call always lands on
	// the single default session regardless of any caller-supplied
	// session_id, which only takes effect once the call is a follow-up
	// naming it.
	preferredID := req.SessionID
	if !req.FollowUp {
		preferredID = p.sessions.DefaultID()
	}
	sess, err := p.sessions.GetOrCreate(preferredID)
	if err != nil {
		p.record("", req.Query, audit.OutcomeError, p.now().Sub(start))
		return markdown.Failure(markdown.FailureInput{ErrorText: fmt.Sprintf("会话初始化失败：%v", err)})
	}
	if !req.FollowUp {
		p.sessions.SetDefaultID(sess.ID)
	}
	p.sessions.Touch(sess.ID, true)
	defer p.sessions.Touch(sess.ID, false) // refresh last_access on exit

	// Phase 7: budget check.
	hasImage := req.ImagePath != ""
	totalBudget := p.cfg.TotalBudget(hasImage)
	elapsed := p.now().Sub(start)
	remaining := totalBudget - elapsed - p.cfg.SafetyMargin
	if remaining < p.cfg.MinExecution {
		p.record(sess.ID, req.Query, audit.OutcomeBusy, p.now().Sub(start))
		return markdown.Failure(markdown.FailureInput{ErrorText: "排队时间过长，请稍后重试"})
	}

	// Phase 8: execute.
	execTimeout := p.cfg.ExecutionTimeout(hasImage)
	if remaining < execTimeout {
		execTimeout = remaining
	}
	applies, term := grounding.Gate(p.cfg.StrictGrounding, req.FollowUp, hasImage, req.Query)
	guardedQuery := req.Query
	if applies {
		guardedQuery = p.cfg.GuardrailPrompt + "\n\n" + req.Query
	}

	result := p.execute(ctx, sess, req, guardedQuery, execTimeout)

	// Phase 9: policy.
	result.AIAnswer = stripGuardrailPrompt(result.AIAnswer, p.cfg.GuardrailPrompt)
	if result.Success && applies {
		result.Sources = urlhygiene.Clean(result.Sources)
		decision := grounding.Evaluate(result.AIAnswer, result.Sources, term)
		if decision.Override {
			result = p.retryOrCanned(ctx, sess, req, term, result, remaining, start)
		}
	} else if result.Success {
		result.Sources = urlhygiene.Clean(result.Sources)
	}

	// Phase 10: CAPTCHA retry.
	if !result.Success && searcherr.TextIsCaptchaHandledByOther(result.Error) {
		p.captchaGate.Release()
		remaining = totalBudget - p.now().Sub(start) - p.cfg.SafetyMargin
		if remaining > 0 {
			result = p.execute(ctx, sess, req, guardedQuery, remaining)
			result.AIAnswer = stripGuardrailPrompt(result.AIAnswer, p.cfg.GuardrailPrompt)
			if result.Success {
				result.Sources = urlhygiene.Clean(result.Sources)
			}
		}
	} else if !result.Success && searcherr.MatchesCaptchaKeywords(result.Error) {
		if !p.captchaGate.IsHeld() {
			if p.captchaGate.TryAcquire(0) == captcha.Acquired {
				// This call is now the one driving headed recovery; hold the
				// gate for the rest of its own lifetime so concurrent calls
				// wait at phase 3, then release it once this call returns.
				defer p.captchaGate.Release()
				if p.notifier != nil {
					p.notifier.NotifyCaptchaRecoveryStarted(sess.ID)
				}
			}
		}
	}

	// Phase 11: login-timeout latch. An execution timeout is not a login
	// timeout and never trips the latch.
	if !result.Success && result.Error != errExecutionTimeout && searcherr.MatchesLoginTimeoutKeywords(result.Error) {
		p.cooldown.Trip()
		p.record(sess.ID, req.Query, audit.OutcomeError, p.now().Sub(start))
		return markdown.Failure(markdown.FailureInput{
			ErrorText: result.Error,
			AuthIssue: true,
			SetupCmd:  p.setupCmd,
		})
	}

	// Phase 12: shape.
	var out string
	if result.Success {
		out = markdown.Success(markdown.SuccessInput{
			FollowUp:      req.FollowUp,
			Query:         req.Query,
			Answer:        result.AIAnswer,
			Sources:       result.Sources,
			SessionID:     sess.ID,
			LogPath:       p.log.CurrentPath(),
			LogDir:        p.cfg.LogDir,
			RetentionDays: p.cfg.LogRetentionDays,
		})
		p.record(sess.ID, req.Query, audit.OutcomeSuccess, p.now().Sub(start))
	} else {
		out = markdown.Failure(markdown.FailureInput{ErrorText: result.Error})
		p.record(sess.ID, req.Query, audit.OutcomeError, p.now().Sub(start))
	}

	// Phase 13: session reset.
	if result.Success && applies && !req.FollowUp && result.AIAnswer == grounding.CannedNoRecordAnswer {
		p.sessions.Close(sess.ID)
	}

	// Phase 14: release slots — handled by the defers above, in reverse
	// acquisition order (local gate deferred before global lease, so the
	// lease releases first).
	return out
}

func (p *Pipeline) execute(ctx context.Context, sess *session.Session, req Request, guardedQuery string, timeout time.Duration) searcher.Result {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type resultErr struct {
		res searcher.Result
		err error
	}
	done := make(chan resultErr, 1)

	go func() {
		if req.FollowUp && sess.Searcher.HasActiveSession() {
			res, err := sess.Searcher.ContinueConversation(execCtx, req.Query)
			done <- resultErr{res, err}
			return
		}
		res, err := sess.Searcher.Search(execCtx, guardedQuery, req.Language, req.ImagePath)
		done <- resultErr{res, err}
	}()

	select {
	case re := <-done:
		if re.err != nil {
			return searcher.Result{Success: false, Query: req.Query, Error: re.err.Error()}
		}
		re.res.Query = req.Query
		return re.res
	case <-execCtx.Done():
		// Execution timeout tripped: the owning session is closed so a
		// wedged page cannot pollute subsequent calls.
		p.sessions.Close(sess.ID)
		return searcher.Result{Success: false, Query: req.Query, Error: errExecutionTimeout}
	}
}

// errExecutionTimeout is the error text execute reports when its deadline
// trips.
const errExecutionTimeout = "execution timeout"

// retryOrCanned makes one unguarded retry attempt and falls back to the
// canned no-record answer if it still fails the grounding check.
func (p *Pipeline) retryOrCanned(ctx context.Context, sess *session.Session, req Request, term string, original searcher.Result, remaining time.Duration, start time.Time) searcher.Result {
	query := req.Query
	if grounding.IsTechTermLookup(term) && term == req.Query {
		query = grounding.RephraseAsQuestion(term)
	}

	retryBudget := remaining - p.now().Sub(start)
	if retryBudget <= 0 {
		return cannedResult(req.Query)
	}

	retryResult := p.execute(ctx, sess, req, query, retryBudget)
	retryResult.Sources = urlhygiene.Clean(retryResult.Sources)
	if !retryResult.Success {
		return cannedResult(req.Query)
	}
	decision := grounding.Evaluate(retryResult.AIAnswer, retryResult.Sources, term)
	if decision.Override {
		return cannedResult(req.Query)
	}
	return retryResult
}

func cannedResult(query string) searcher.Result {
	return searcher.Result{Success: true, Query: query, AIAnswer: grounding.CannedNoRecordAnswer}
}

func stripGuardrailPrompt(answer, prompt string) string {
	if prompt == "" {
		return answer
	}
	return strings.TrimSpace(strings.ReplaceAll(answer, prompt, ""))
}

func (p *Pipeline) record(sessionID, query string, outcome audit.Outcome, duration time.Duration) {
	if p.auditLog == nil {
		return
	}
	if err := p.auditLog.Record(sessionID, query, outcome, duration); err != nil {
		p.log.Error("audit", "record failed: %v", err)
	}
}
