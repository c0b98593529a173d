// Package vectormath provides the brute-force vector and keyword scoring
// shared by the backends that have no database-side ANN or full-text
// engine to delegate to (memstore, sqlitestore).
package vectormath

import (
	"math"
	"strings"
)

// CosineSimilarity returns the cosine similarity of a and b, 0 if either is
// empty or the two have mismatched dimensions.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// KeywordRank scores text against query by fraction of query terms present,
// a simple stand-in for Postgres's ts_rank_cd where neither FTS nor a
// search index is available. Returns 0 if no term matches.
func KeywordRank(text, query string) float64 {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)

	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	return float64(hits) / float64(len(terms))
}
