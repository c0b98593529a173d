package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
	"github.com/bbangmxn/mailintel/core/service/query/contextbuilder"
)

// AttachmentHandler answers "emails with attachments" questions.
type AttachmentHandler struct {
	store out.MessageStore
	llm   out.LLM
}

// NewAttachmentHandler constructs an AttachmentHandler.
func NewAttachmentHandler(store out.MessageStore, llm out.LLM) *AttachmentHandler {
	return &AttachmentHandler{store: store, llm: llm}
}

// Handle lists messages carrying attachments and summarizes them via the LLM,
// falling back to a plain count if that call fails.
func (h *AttachmentHandler) Handle(ctx context.Context, question string, limit int) Result {
	msgs, err := h.store.SearchByAttachment(ctx, limit)
	if err != nil {
		return errResult(question, domain.QuerySearchByAttach, err)
	}

	answer := fmt.Sprintf("Found %d emails with attachments.", len(msgs))
	if len(msgs) > 0 {
		prompt := "Answer the user's question using only the emails below.\n\nQuestion: " + question +
			"\n\n" + contextbuilder.Build(contextbuilder.WrapMessages(msgs))
		if reply, err := h.llm.Invoke(ctx, prompt); err == nil && strings.TrimSpace(reply) != "" {
			answer = reply
		}
	}

	return Result{
		Answer:     answer,
		Sources:    sourcesFrom(msgs, 1.0),
		Question:   question,
		Confidence: confidenceFor(len(msgs)),
		QueryType:  domain.QuerySearchByAttach,
	}
}
