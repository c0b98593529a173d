package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
	"github.com/bbangmxn/mailintel/core/service/query/contextbuilder"
	"github.com/bbangmxn/mailintel/core/service/query/textutil"
)

const classificationSampleLimit = 10

// ClassificationHandler answers "show me my X emails" questions for a known
// label.
type ClassificationHandler struct {
	store out.MessageStore
	llm   out.LLM
}

// NewClassificationHandler constructs a ClassificationHandler.
func NewClassificationHandler(store out.MessageStore, llm out.LLM) *ClassificationHandler {
	return &ClassificationHandler{store: store, llm: llm}
}

// Handle derives a label from the question (or, failing that, recent chat
// history) and lists a sample of messages bearing it alongside the true
// total.
func (h *ClassificationHandler) Handle(ctx context.Context, question string, limit int, history []domain.ChatMessage) Result {
	label, ok := domain.MatchLabelTerm(question)
	if !ok {
		label, ok = h.extractLabelFromHistory(ctx, history)
	}
	if !ok {
		return Result{
			Answer:     "Which category of email would you like to see — for example finance, travel, or receipts?",
			Question:   question,
			Confidence: domain.ConfidenceNone,
			QueryType:  domain.QueryClassification,
		}
	}

	sample := limit
	if sample <= 0 || sample > classificationSampleLimit {
		sample = classificationSampleLimit
	}
	msgs, total, err := h.store.ListMessagesByLabel(ctx, label, sample, 0)
	if err != nil {
		return errResult(question, domain.QueryClassification, err)
	}

	answer := fmt.Sprintf("You have %d emails labeled '%s'.", total, label)
	if len(msgs) > 0 {
		prompt := "Summarize these emails for the user in a couple of sentences.\n\n" +
			contextbuilder.Build(contextbuilder.WrapMessages(msgs))
		if reply, err := h.llm.Invoke(ctx, prompt); err == nil && strings.TrimSpace(reply) != "" {
			answer = reply
		}
	}

	return Result{
		Answer:     answer,
		Sources:    sourcesFrom(msgs, 1.0),
		Question:   question,
		Confidence: confidenceFor(total),
		QueryType:  domain.QueryClassification,
		TotalCount: total,
	}
}

func (h *ClassificationHandler) extractLabelFromHistory(ctx context.Context, history []domain.ChatMessage) (string, bool) {
	recent := textutil.RecentHistory(history, 2)
	if recent == "" {
		return "", false
	}
	if label, ok := domain.MatchLabelTerm(recent); ok {
		return label, true
	}

	raw, err := h.llm.Classify(ctx,
		"Extract the single email category the user is referring to. Respond with only that category, nothing else.",
		recent)
	if err != nil {
		return "", false
	}
	tok := textutil.NormalizeToken(textutil.FirstToken(raw))
	if domain.IsWhitelistedLabel(tok) {
		return tok, true
	}
	return "", false
}
