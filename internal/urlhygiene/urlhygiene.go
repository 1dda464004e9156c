// Package urlhygiene cleans up the source list attached to a search
// result: duplicates by URL are dropped, the list is capped at 10
// entries, non-http(s) schemes are rejected, and Google redirect URLs
// (any locale's google.<tld> host) are resolved to the page they
// actually point at before being shown to the caller.
package urlhygiene

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/wangwingzero/huge-ai-search/internal/searcher"
)

const maxSources = 10

// googleHostPattern matches any Google search/redirect host across its
// country-code domains: google.com, google.de, google.fr, google.co.kr,
// google.co.jp, google.co.uk, and the www-prefixed form of each.
var googleHostPattern = regexp.MustCompile(`^(www\.)?google\.[a-z]{2,3}(\.[a-z]{2})?$`)

// Clean filters and dedups sources, returning at most 10.
func Clean(sources []searcher.Source) []searcher.Source {
	seen := make(map[string]bool, len(sources))
	out := make([]searcher.Source, 0, len(sources))

	for _, s := range sources {
		resolved, ok := resolve(s)
		if !ok {
			continue
		}
		if seen[resolved.URL] {
			continue
		}
		seen[resolved.URL] = true
		out = append(out, resolved)
		if len(out) == maxSources {
			break
		}
	}
	return out
}

func resolve(s searcher.Source) (searcher.Source, bool) {
	u, err := url.Parse(s.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return s, false
	}

	if isGoogleFamily(u.Host) {
		target := u.Query().Get("url")
		if target == "" {
			target = u.Query().Get("q")
		}
		if target == "" {
			return s, false
		}
		resolvedURL, err := url.Parse(target)
		if err != nil || (resolvedURL.Scheme != "http" && resolvedURL.Scheme != "https") {
			return s, false
		}
		if isGoogleFamily(resolvedURL.Host) {
			return s, false
		}
		s.URL = resolvedURL.String()
		return s, true
	}

	return s, true
}

func isGoogleFamily(host string) bool {
	return googleHostPattern.MatchString(strings.ToLower(host))
}
