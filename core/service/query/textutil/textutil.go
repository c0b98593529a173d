// Package textutil holds the small text-normalization helpers the Query
// Classifier and the Query Handlers both need when post-processing an
// LLM's free-form reply into a short, structured token. It has no
// dependency on either package, so both can import it without a cycle.
package textutil

import (
	"fmt"
	"strings"

	"github.com/bbangmxn/mailintel/core/domain"
)

// StripPreamble removes a known leading phrase (case-insensitive) from s,
// e.g. "the answer is finance" -> "finance".
func StripPreamble(s string, preambles []string) string {
	trimmed := strings.TrimSpace(s)
	lower := strings.ToLower(trimmed)
	for _, p := range preambles {
		if strings.HasPrefix(lower, p) {
			return strings.TrimSpace(trimmed[len(p):])
		}
	}
	return trimmed
}

// FirstToken returns the first whitespace-delimited token of s, with
// surrounding punctuation stripped.
func FirstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], ".,:;!?\"'()")
}

// NormalizeToken lowercases, trims surrounding punctuation, and maps
// underscores to hyphens (the LLM sometimes emits "search_by_sender" for
// "search-by-sender").
func NormalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".,:;!?\"'()")
	return strings.ReplaceAll(s, "_", "-")
}

// FindFirstValidToken scans every whitespace-delimited token of s in order
// and returns the first one that, once normalized, satisfies valid.
func FindFirstValidToken(s string, valid func(string) bool) (string, bool) {
	for _, f := range strings.Fields(s) {
		tok := NormalizeToken(f)
		if valid(tok) {
			return tok, true
		}
	}
	return "", false
}

// stopwords is the short list the keyword-extraction fallback strips when
// no LLM call is available.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {},
	"from": {}, "have": {}, "about": {}, "what": {}, "when": {}, "where": {},
	"which": {}, "would": {}, "could": {}, "should": {}, "there": {},
	"their": {}, "they": {}, "been": {}, "being": {}, "into": {}, "over": {},
	"under": {}, "between": {},
}

// Keywords extracts words longer than 3 characters that aren't stopwords,
// lowercased, in order of first appearance, deduplicated, capped at max.
func Keywords(s string, max int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,:;!?\"'()")
		if len(w) <= 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

// RecentHistory renders the last `exchanges` exchanges (up to
// 2*exchanges chat messages; all of them when exchanges <= 0) as
// "role: content" lines, used to give extraction/classification prompts enough context for
// pronoun resolution without stashing chat state ambiently.
func RecentHistory(history []domain.ChatMessage, exchanges int) string {
	if len(history) == 0 {
		return ""
	}
	start := 0
	if exchanges > 0 && len(history) > exchanges*2 {
		start = len(history) - exchanges*2
	}
	var b strings.Builder
	for _, m := range history[start:] {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return strings.TrimSpace(b.String())
}
