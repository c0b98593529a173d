package handlers

import (
	"context"
	"strings"

	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
	"github.com/bbangmxn/mailintel/core/service/query/textutil"
)

var keywordPreambles = []string{"keywords:", "keywords are", "the keywords are"}

// TemporalHandler answers date-ordered questions, with or without a content
// filter.
type TemporalHandler struct {
	store out.MessageStore
	llm   out.LLM
}

// NewTemporalHandler constructs a TemporalHandler.
func NewTemporalHandler(store out.MessageStore, llm out.LLM) *TemporalHandler {
	return &TemporalHandler{store: store, llm: llm}
}

// Handle lists the most recent messages, narrowed by extracted keywords
// when the query type is filtered-temporal.
func (h *TemporalHandler) Handle(ctx context.Context, question string, kind domain.QueryKind, limit int) Result {
	if kind != domain.QueryFilteredTemporal {
		msgs, err := h.store.ListMessages(ctx, limit, 0)
		if err != nil {
			return errResult(question, domain.QueryTemporal, err)
		}
		return listResult(question, domain.QueryTemporal, msgs)
	}

	keywords := h.extractKeywords(ctx, question)
	if len(keywords) == 0 {
		msgs, err := h.store.ListMessages(ctx, limit, 0)
		if err != nil {
			return errResult(question, domain.QueryFilteredTemporal, err)
		}
		return listResult(question, domain.QueryFilteredTemporal, msgs)
	}

	msgs, err := h.store.SearchByKeywords(ctx, keywords, limit)
	if err != nil {
		return errResult(question, domain.QueryFilteredTemporal, err)
	}
	return listResult(question, domain.QueryFilteredTemporal, msgs)
}

func listResult(question string, kind domain.QueryKind, msgs []*domain.Message) Result {
	return Result{
		Answer:     "Here are the most relevant emails I found.",
		Sources:    sourcesFrom(msgs, 1.0),
		Question:   question,
		Confidence: confidenceFor(len(msgs)),
		QueryType:  kind,
	}
}

func (h *TemporalHandler) extractKeywords(ctx context.Context, question string) []string {
	raw, err := h.llm.Classify(ctx,
		"Extract the content keywords (ignoring time words like 'recent' or 'last week') the user wants emails filtered by, as a comma-separated list. Respond with only that list.",
		question)
	if err == nil {
		if kws := splitCommaList(raw); len(kws) > 0 {
			return kws
		}
	}
	return textutil.Keywords(question, 3)
}

func splitCommaList(raw string) []string {
	stripped := textutil.StripPreamble(raw, keywordPreambles)
	var out []string
	for _, part := range strings.Split(stripped, ",") {
		tok := textutil.NormalizeToken(strings.TrimSpace(part))
		if tok == "" || isBannedExtraction(tok) {
			continue
		}
		out = append(out, tok)
	}
	return out
}
