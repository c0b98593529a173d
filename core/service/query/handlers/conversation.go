package handlers

import (
	"context"
	"strings"

	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
)

// ConversationHandler answers small talk with no storage access.
type ConversationHandler struct {
	llm out.LLM
}

// NewConversationHandler constructs a ConversationHandler.
func NewConversationHandler(llm out.LLM) *ConversationHandler {
	return &ConversationHandler{llm: llm}
}

// Handle generates a short reply using a fixed prompt, falling back to a
// canned response by coarse intent on any error or empty reply.
func (h *ConversationHandler) Handle(ctx context.Context, question string) Result {
	reply, err := h.llm.Invoke(ctx, conversationPrompt(question))
	if err != nil || strings.TrimSpace(reply) == "" {
		reply = cannedReply(question)
	}

	return Result{
		Answer:     reply,
		Question:   question,
		Confidence: domain.ConfidenceHigh,
		QueryType:  domain.QueryConversation,
	}
}

func conversationPrompt(question string) string {
	return "You are a friendly email assistant. Respond briefly and naturally, " +
		"without referencing any specific emails.\n\n" + question
}

func cannedReply(question string) string {
	lower := strings.ToLower(question)
	switch {
	case containsAny(lower, "hi", "hello", "hey"):
		return "Hello! How can I help you with your email today?"
	case containsAny(lower, "thank"):
		return "You're welcome!"
	case containsAny(lower, "help", "what can you do"):
		return "I can search your inbox, summarize emails, and answer questions about your messages."
	default:
		return "I'm here to help with your email. What would you like to know?"
	}
}

func containsAny(s string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
