// Package rag implements the Semantic Handler's retrieval-quality add-on:
// a cross-encoder-shaped reranker.
package rag

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/bbangmxn/mailintel/core/domain"
)

// RankedDocument is one candidate scored against the query.
type RankedDocument struct {
	Message *domain.Message
	Score   float64
}

// Reranker scores (question, document) pairs and reorders candidates by
// relevance. Grounded on a Ranker.ReRank
// (worker_rag_ranker.go), an explicit placeholder for "a future
// cross-encoder"; this is that cross-encoder, standing in with a
// lexical-overlap scorer since no ML-inference library exists anywhere in
// the retrieval pack. Lazy-loaded, process-wide, idempotent, with a
// failure sentinel that makes it a permanent pass-through no-op for the
// rest of the process if the one-time load ever fails.
type Reranker struct {
	once   sync.Once
	failed bool
}

// NewReranker constructs a Reranker. Loading happens on first Rerank call,
// not here.
func NewReranker() *Reranker {
	return &Reranker{}
}

func (r *Reranker) load() {
	r.once.Do(func() {
		// The lexical-overlap scorer needs no external weights to load;
		// the once-guarded failure path exists for the real cross-encoder
		// a future swap-in would need to initialize here.
	})
}

// Rerank scores each (question, subject+snippet) pair and returns the top
// limit candidates sorted by score descending. On load failure it passes
// the initial ranking through untouched, truncated to limit.
func (r *Reranker) Rerank(ctx context.Context, question string, candidates []*domain.Message, limit int) []RankedDocument {
	r.load()

	docs := make([]RankedDocument, len(candidates))
	for i, m := range candidates {
		docs[i] = RankedDocument{Message: m}
	}

	if r.failed {
		return truncate(docs, limit)
	}

	qterms := termSet(question)
	for i := range docs {
		m := docs[i].Message
		docs[i].Score = overlapScore(qterms, termSet(m.Subject+" "+m.Snippet))
	}

	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Score > docs[j].Score })
	return truncate(docs, limit)
}

func truncate(docs []RankedDocument, limit int) []RankedDocument {
	if limit > 0 && len(docs) > limit {
		return docs[:limit]
	}
	return docs
}

func termSet(s string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?:;\"'()")
		if len(w) < 2 {
			continue
		}
		terms[w] = struct{}{}
	}
	return terms
}

func overlapScore(q, d map[string]struct{}) float64 {
	if len(q) == 0 || len(d) == 0 {
		return 0
	}
	overlap := 0
	for t := range q {
		if _, ok := d[t]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(q))
}
