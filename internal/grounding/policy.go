// Package grounding is a deterministic decision procedure that may replace
// a raw AI answer with a canned "no verifiable record" response when a
// tech-term lookup comes back without an authoritative source or a
// substantive answer. This is pure classification logic, so it stays on
// stdlib regexp/strings/net/url rather than reaching for an NLP library.
package grounding

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/wangwingzero/huge-ai-search/internal/searcher"
)

// CannedNoRecordAnswer is the fixed response text used when grounding
// policy overrides the model's answer.
const CannedNoRecordAnswer = "该词条在当前技术语料库和实时搜索中无可验证记录。\n\n说明：当前仅表示未检索到可验证权威来源，不等于该词条绝对不存在。"

const substantiveMinLength = 200

var (
	lookupHintPattern = regexp.MustCompile(`(?i)(是什么|什么是|什么意思|含义|定义|what\s+is\b)`)
	bareTokenPattern  = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)
	punctuation       = regexp.MustCompile(`[[:punct:]\s]+`)
)

// IsTechTermLookup is a deterministic predicate on the trimmed,
// de-punctuated query: true when the query looks like a request for the
// definition of a single technical term.
func IsTechTermLookup(query string) bool {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return false
	}
	if lookupHintPattern.MatchString(trimmed) {
		return true
	}
	depunctuated := strings.TrimSpace(punctuation.ReplaceAllString(trimmed, " "))
	return bareTokenPattern.MatchString(depunctuated) && !strings.Contains(depunctuated, " ")
}

var standardsBodies = []string{"rfc-editor.org", "ietf.org", "w3.org", "iso.org", "ecma-international.org", "whatwg.org"}
var packageRegistries = []string{"npmjs.com", "pypi.org", "crates.io", "pkg.go.dev", "rubygems.org", "nuget.org", "packagist.org", "pub.dev"}
var techPlatforms = []string{"dev.to", "medium.com", "wikipedia.org"}
var stackExchangeFamily = []string{"stackoverflow.com", "stackexchange.com", "serverfault.com", "superuser.com", "askubuntu.com"}

var docPathPattern = regexp.MustCompile(`/docs/|/reference/|/api/`)

// IsAuthoritative reports whether a single source counts as an
// authoritative reference for the given tech term.
func IsAuthoritative(src searcher.Source, term string) bool {
	u, err := url.Parse(src.URL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Host)

	if isStackExchange(host) {
		return false // explicitly disallowed as sole authority
	}
	if strings.Contains(host, "github.com") {
		return true
	}
	if matchesAny(host, standardsBodies) || matchesAny(host, packageRegistries) || matchesAny(host, techPlatforms) {
		return true
	}
	if strings.HasPrefix(host, "docs.") || strings.Contains(host, "developer.mozilla.org") || strings.HasSuffix(host, ".readthedocs.io") {
		return true
	}
	if docPathPattern.MatchString(u.Path) {
		return true
	}
	return officialSiteHeuristic(host, term)
}

func isStackExchange(host string) bool {
	return matchesAny(host, stackExchangeFamily)
}

func matchesAny(host string, candidates []string) bool {
	for _, c := range candidates {
		if host == c || strings.HasSuffix(host, "."+c) {
			return true
		}
	}
	return false
}

// officialSiteHeuristic treats a source as authoritative when the host's
// base label contains the extracted term, e.g. term "redis" and host
// "redis.io".
func officialSiteHeuristic(host, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return false
	}
	base := strings.SplitN(host, ".", 2)[0]
	return strings.Contains(base, term)
}

// AnyAuthoritative reports whether any source in sources is authoritative
// for term.
func AnyAuthoritative(sources []searcher.Source, term string) bool {
	for _, s := range sources {
		if IsAuthoritative(s, term) {
			return true
		}
	}
	return false
}

// IsSubstantive reports whether the answer is long enough and backed by
// at least one source to stand on its own without an authoritative
// citation.
func IsSubstantive(answer string, sources []searcher.Source) bool {
	return len([]rune(answer)) > substantiveMinLength && len(sources) > 0
}

// Decision is what ApplyPolicy returns.
type Decision struct {
	Override bool   // true means force the canned response
	Term     string // the extracted tech term, for the retry
}

// Gate evaluates whether grounding policy even applies to this call:
// strict grounding enabled, not a follow-up, no image input, and the
// query classifies as a tech-term lookup.
func Gate(strictGrounding, followUp bool, hasImage bool, query string) (applies bool, term string) {
	if !strictGrounding || followUp || hasImage {
		return false, ""
	}
	if !IsTechTermLookup(query) {
		return false, ""
	}
	return true, ExtractTerm(query)
}

// ExtractTerm pulls the bare term out of a lookup-hint query, or returns
// the trimmed query itself when it was already a bare token.
func ExtractTerm(query string) string {
	trimmed := strings.TrimSpace(query)
	loc := lookupHintPattern.FindStringIndex(trimmed)
	if loc == nil {
		return strings.TrimSpace(punctuation.ReplaceAllString(trimmed, " "))
	}
	term := strings.TrimSpace(trimmed[:loc[0]])
	term = strings.TrimRight(term, "的")
	if term == "" {
		// "what is X" shape: hint is a prefix, term follows it.
		term = strings.TrimSpace(trimmed[loc[1]:])
	}
	return term
}

// Evaluate decides whether to override the answer: if neither an
// authoritative source nor a substantive answer is present, the canned
// no-record response should be used instead.
func Evaluate(answer string, sources []searcher.Source, term string) Decision {
	if AnyAuthoritative(sources, term) || IsSubstantive(answer, sources) {
		return Decision{Override: false, Term: term}
	}
	return Decision{Override: true, Term: term}
}

// RephraseAsQuestion turns a bare identifier token into a natural-language
// question, used for the single unguarded retry allowed for bare-token
// queries ("what is X").
func RephraseAsQuestion(term string) string {
	return "what is " + term
}
