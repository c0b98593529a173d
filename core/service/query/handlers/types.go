// Package handlers implements the seven Query Handlers: one per recognized query type, except that TemporalHandler
// serves both temporal and filtered-temporal. Each consumes a question (plus
// limit/history as needed) and returning the shared Result shape.
package handlers

import "github.com/bbangmxn/mailintel/core/domain"

// Result is the uniform shape every query handler returns: an answer, the sources it drew from, the echoed question,
// a confidence level, the dispatched query type, and — for handlers that
// sample from a larger set — the true total distinct from sample size.
type Result struct {
	Answer     string
	Sources    []domain.Source
	Question   string
	Confidence domain.Confidence
	QueryType  domain.QueryKind
	TotalCount int
}
