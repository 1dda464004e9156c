// Package searcher declares the contract the browser automation layer
// must satisfy. The automation itself — the scripts that click, upload
// and scrape the AI-Mode search surface — lives and is wired in
// separately; only the interface and the result types it exchanges with
// the pipeline live here.
package searcher

import "context"

// Language is one of the six locales the search tool accepts.
type Language string

const (
	LanguageZhCN Language = "zh-CN"
	LanguageEnUS Language = "en-US"
	LanguageJaJP Language = "ja-JP"
	LanguageKoKR Language = "ko-KR"
	LanguageDeDE Language = "de-DE"
	LanguageFrFR Language = "fr-FR"
)

// DefaultLanguage is used whenever a request omits one.
const DefaultLanguage = LanguageZhCN

// ValidLanguage reports whether lang is one of the six accepted codes.
func ValidLanguage(lang string) bool {
	switch Language(lang) {
	case LanguageZhCN, LanguageEnUS, LanguageJaJP, LanguageKoKR, LanguageDeDE, LanguageFrFR:
		return true
	}
	return false
}

// Source is a single citation returned alongside an AI answer.
type Source struct {
	Title   string
	URL     string
	Snippet string
}

// Result is what a search or continue_conversation call produces.
//
// Invariant: Success implies AIAnswer is non-empty and Error is empty;
// failure implies Error is non-empty.
type Result struct {
	Success  bool
	Query    string
	AIAnswer string
	Sources  []Source
	Error    string
}

// Searcher is the per-session handle to a reusable browser context. The
// session registry owns exactly one Searcher per session and calls Close;
// the pipeline calls the other methods while that session's call is in
// flight.
type Searcher interface {
	// Search runs a fresh query. imagePath is empty for text-only calls.
	Search(ctx context.Context, query string, lang Language, imagePath string) (Result, error)
	// ContinueConversation asks the existing page to follow up rather than
	// starting a new search.
	ContinueConversation(ctx context.Context, query string) (Result, error)
	// HasActiveSession reports whether the underlying page can be
	// follow-up'd right now.
	HasActiveSession() bool
	// Close releases the browser and any OS resources it holds. Safe to
	// call more than once.
	Close() error
}

// Factory constructs a Searcher bound to a fresh per-session data
// directory. Supplied by the browser subsystem at wiring time; the core
// never constructs a concrete Searcher itself.
type Factory func(dataDir string) (Searcher, error)
