// Package query implements the Query Classifier and RAG Engine: routing
// a user question to exactly one of eight query types and dispatching it
// to the matching handler.
package query

import (
	"context"
	"strings"

	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
	"github.com/bbangmxn/mailintel/core/service/query/textutil"
)

var classifierPreambles = []string{
	"the answer is", "the classification is", "the query type is",
	"classification:", "query type:", "category:", "type:", "answer:",
}

// shortMap maps a few common LLM synonyms onto the canonical type set.
var shortMap = map[string]domain.QueryKind{
	"recent": domain.QueryFilteredTemporal,
	"latest": domain.QueryFilteredTemporal,
	"newest": domain.QueryFilteredTemporal,
	"oldest": domain.QueryFilteredTemporal,
	"count":  domain.QueryAggregation,
}

var greetingWords = []string{
	"hi", "hello", "hey", "good morning", "good afternoon", "good evening",
	"thanks", "thank you",
}

var temporalWords = []string{
	"today", "yesterday", "recent", "latest", "newest", "oldest",
	"this week", "last week", "this month", "last month", "this year", "ago",
}

var followUpPronouns = map[string]struct{}{
	"it": {}, "them": {}, "those": {}, "that": {}, "these": {},
}

var backReferencePhrases = []string{"of the", "this one", "that one"}

// Classifier routes a question to exactly one QueryKind.
type Classifier struct {
	llm out.LLM
}

// NewClassifier constructs a Classifier over the given LLM Gateway.
func NewClassifier(llm out.LLM) *Classifier {
	return &Classifier{llm: llm}
}

// Classify implements the four-step procedure.
func (c *Classifier) Classify(ctx context.Context, question string, history []domain.ChatMessage) domain.QueryKind {
	if _, ok := domain.MatchLabelTerm(question); ok {
		return domain.QueryClassification
	}

	raw, err := c.llm.Classify(ctx, classifierSystemPrompt(), classifierUserPrompt(question, history))
	if err != nil {
		return heuristicClassify(question)
	}

	if kind, ok := parseQueryKind(raw); ok {
		return kind
	}
	return heuristicClassify(question)
}

func classifierSystemPrompt() string {
	kinds := make([]string, len(domain.ValidQueryKinds))
	for i, k := range domain.ValidQueryKinds {
		kinds[i] = string(k)
	}
	return "You are a query router for an email assistant. Classify the user's question into exactly one of: " +
		strings.Join(kinds, ", ") + ". Respond with only that type, nothing else."
}

func classifierUserPrompt(question string, history []domain.ChatMessage) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	if recent := textutil.RecentHistory(history, 2); recent != "" {
		b.WriteString("\n\nRecent conversation:\n")
		b.WriteString(recent)
	}
	return b.String()
}

// parseQueryKind strips a known
// preamble, takes the first token, normalizes it, and accepts it directly or via
// the short mapping, else scan the whole response for the first valid
// token.
func parseQueryKind(raw string) (domain.QueryKind, bool) {
	stripped := textutil.StripPreamble(raw, classifierPreambles)
	tok := textutil.NormalizeToken(textutil.FirstToken(stripped))

	if mapped, ok := shortMap[tok]; ok {
		return mapped, true
	}
	if domain.IsValidQueryKind(tok) {
		return domain.QueryKind(tok), true
	}

	found, ok := textutil.FindFirstValidToken(stripped, func(t string) bool {
		if _, ok := shortMap[t]; ok {
			return true
		}
		return domain.IsValidQueryKind(t)
	})
	if !ok {
		return "", false
	}
	if mapped, ok := shortMap[found]; ok {
		return mapped, true
	}
	return domain.QueryKind(found), true
}

// heuristicClassify is the rule-based fallback classifier, used whenever
// the LLM call itself errors or its response can't be parsed.
func heuristicClassify(question string) domain.QueryKind {
	lower := strings.ToLower(question)

	for _, g := range greetingWords {
		if strings.Contains(lower, g) {
			return domain.QueryConversation
		}
	}

	if strings.Contains(lower, "how many") || strings.Contains(lower, "count") || strings.Contains(lower, "number of") {
		return domain.QueryAggregation
	}

	hasTemporal := false
	for _, t := range temporalWords {
		if strings.Contains(lower, t) {
			hasTemporal = true
			break
		}
	}
	if hasTemporal {
		if hasContentFilter(lower) {
			return domain.QueryFilteredTemporal
		}
		return domain.QueryTemporal
	}

	return domain.QuerySemantic
}

// hasContentFilter reports whether lower carries a non-stopword,
// non-temporal word of meaningful length, i.e. a content filter alongside
// whatever temporal word triggered the caller's check.
func hasContentFilter(lower string) bool {
	for _, w := range strings.Fields(lower) {
		w = strings.Trim(w, ".,!?")
		if len(w) <= 3 {
			continue
		}
		isTemporal := false
		for _, t := range temporalWords {
			if w == t || strings.Contains(t, w) {
				isTemporal = true
				break
			}
		}
		if isTemporal {
			continue
		}
		if len(textutil.Keywords(w, 1)) > 0 {
			return true
		}
	}
	return false
}

// IsFollowUp reports whether question reads as a continuation of the
// conversation: short, containing a pronoun or back-reference, or an
// ambiguous action on a bare number — and only when there's history to
// continue.
func IsFollowUp(question string, history []domain.ChatMessage) bool {
	if len(history) == 0 {
		return false
	}

	lower := strings.ToLower(strings.TrimSpace(question))
	words := strings.Fields(lower)

	for _, w := range words {
		w = strings.Trim(w, ".,!?")
		if _, ok := followUpPronouns[w]; ok {
			return true
		}
		if isBareNumber(w) {
			return true
		}
	}
	for _, phrase := range backReferencePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return len(words) <= 3
}

func isBareNumber(w string) bool {
	w = strings.Trim(w, ".,!?#")
	if w == "" {
		return false
	}
	for _, r := range w {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
