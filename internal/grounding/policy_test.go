package grounding

import (
	"strings"
	"testing"

	"github.com/wangwingzero/huge-ai-search/internal/searcher"
)

func TestIsTechTermLookup(t *testing.T) {
	cases := []struct {
		query string
		want  bool
	}{
		{"Quizzlex", true},
		{"Quizzlex是什么", true},
		{"什么是HTTP/3", true},
		{"what is QUIC", true},
		{"explain the QUIC handshake in detail", false},
		{"", false},
		{"   ", false},
	}
	for _, tc := range cases {
		if got := IsTechTermLookup(tc.query); got != tc.want {
			t.Errorf("IsTechTermLookup(%q) = %v, want %v", tc.query, got, tc.want)
		}
	}
}

func TestIsAuthoritative(t *testing.T) {
	cases := []struct {
		name string
		src  searcher.Source
		term string
		want bool
	}{
		{"github", searcher.Source{URL: "https://github.com/golang/go"}, "go", true},
		{"pkg.go.dev", searcher.Source{URL: "https://pkg.go.dev/context"}, "context", true},
		{"docs subdomain", searcher.Source{URL: "https://docs.python.org/3/"}, "python", true},
		{"mdn", searcher.Source{URL: "https://developer.mozilla.org/en-US/docs/Web"}, "web", true},
		{"official site heuristic", searcher.Source{URL: "https://redis.io/"}, "redis", true},
		{"stack overflow alone", searcher.Source{URL: "https://stackoverflow.com/questions/1"}, "go", false},
		{"random blog", searcher.Source{URL: "https://myblog.example.com/post"}, "go", false},
		{"invalid url", searcher.Source{URL: "not-a-url"}, "go", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsAuthoritative(tc.src, tc.term); got != tc.want {
				t.Errorf("IsAuthoritative(%+v, %q) = %v, want %v", tc.src, tc.term, got, tc.want)
			}
		})
	}
}

func TestIsSubstantive(t *testing.T) {
	longAnswer := strings.Repeat("a", 201)
	shortAnswer := strings.Repeat("a", 50)
	oneSource := []searcher.Source{{URL: "https://example.com"}}

	if !IsSubstantive(longAnswer, oneSource) {
		t.Error("expected long answer with a source to be substantive")
	}
	if IsSubstantive(longAnswer, nil) {
		t.Error("expected long answer with no sources to not be substantive")
	}
	if IsSubstantive(shortAnswer, oneSource) {
		t.Error("expected short answer to not be substantive")
	}
}

func TestGate(t *testing.T) {
	applies, term := Gate(true, false, false, "Quizzlex")
	if !applies || term != "Quizzlex" {
		t.Errorf("Gate = (%v, %q), want (true, \"Quizzlex\")", applies, term)
	}

	if applies, _ := Gate(false, false, false, "Quizzlex"); applies {
		t.Error("expected gate disabled when strict grounding is off")
	}
	if applies, _ := Gate(true, true, false, "Quizzlex"); applies {
		t.Error("expected gate disabled on follow-up")
	}
	if applies, _ := Gate(true, false, true, "Quizzlex"); applies {
		t.Error("expected gate disabled with image input")
	}
	if applies, _ := Gate(true, false, false, "explain the full history of HTTP"); applies {
		t.Error("expected gate disabled for a non-lookup query")
	}
}

func TestEvaluateTriggersCannedResponse(t *testing.T) {
	d := Evaluate("Short stub.", nil, "Quizzlex")
	if !d.Override {
		t.Error("expected override when no authoritative source and not substantive")
	}
}

func TestEvaluateSubstantiveAnswerIsKept(t *testing.T) {
	d := Evaluate(strings.Repeat("a", 300), []searcher.Source{{URL: "https://example.com"}}, "Quizzlex")
	if d.Override {
		t.Error("expected no override for a substantive answer")
	}
}

func TestEvaluateAuthoritativeSourceIsKept(t *testing.T) {
	d := Evaluate("short", []searcher.Source{{URL: "https://github.com/golang/go"}}, "go")
	if d.Override {
		t.Error("expected no override when an authoritative source is present")
	}
}

func TestExtractTermFromLookupHint(t *testing.T) {
	if got := ExtractTerm("Quizzlex是什么"); got != "Quizzlex" {
		t.Errorf("ExtractTerm = %q, want Quizzlex", got)
	}
	if got := ExtractTerm("what is QUIC"); got != "QUIC" {
		t.Errorf("ExtractTerm = %q, want QUIC", got)
	}
	if got := ExtractTerm("Quizzlex"); got != "Quizzlex" {
		t.Errorf("ExtractTerm(bare) = %q, want Quizzlex", got)
	}
}
