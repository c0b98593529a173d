package handlers

import (
	"fmt"
	"time"

	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
)

// bannedExtractions are tokens an LLM extraction call sometimes returns
// when it failed to find a real answer; treating them as valid would turn
// a failed extraction into a matches-everything search.
var bannedExtractions = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "my": {}, "it": {}, "this": {}, "that": {},
}

func isBannedExtraction(tok string) bool {
	if len(tok) < 2 {
		return true
	}
	_, banned := bannedExtractions[tok]
	return banned
}

func dateOf(m *domain.Message) time.Time {
	if m.InternalTS <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.InternalTS)
}

// sourceFrom builds the invariant Source shape from a message and the
// similarity this handler reports for it (1.0 for non-semantic handlers,
// ).
func sourceFrom(m *domain.Message, similarity float64) domain.Source {
	return domain.Source{
		MessageID:  m.ID,
		Subject:    m.Subject,
		From:       m.Sender,
		Snippet:    m.Snippet,
		Similarity: similarity,
		Date:       dateOf(m),
	}
}

func sourcesFrom(msgs []*domain.Message, similarity float64) []domain.Source {
	srcs := make([]domain.Source, len(msgs))
	for i, m := range msgs {
		srcs[i] = sourceFrom(m, similarity)
	}
	return srcs
}

func sourcesFromScored(scored []out.ScoredMessage) []domain.Source {
	srcs := make([]domain.Source, len(scored))
	for i, sm := range scored {
		srcs[i] = sourceFrom(sm.Message, sm.Score)
	}
	return srcs
}

// confidenceFor derives a none/high split from a result-set size for the
// handlers with no graded similarity score to report.
func confidenceFor(n int) domain.Confidence {
	if n == 0 {
		return domain.ConfidenceNone
	}
	return domain.ConfidenceHigh
}

func errResult(question string, kind domain.QueryKind, err error) Result {
	return Result{
		Answer:     fmt.Sprintf("Sorry, I couldn't complete that request: %v", err),
		Question:   question,
		Confidence: domain.ConfidenceNone,
		QueryType:  kind,
	}
}
