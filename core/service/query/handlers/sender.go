package handlers

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
	"github.com/bbangmxn/mailintel/core/service/query/textutil"
)

const defaultSenderLimit = 20

var senderPreambles = []string{"the sender is", "sender:", "sender is", "from:"}

var resultCapPattern = regexp.MustCompile(`(?i)(?:last|show|top)\s+(\d{1,3})|(\d{1,3})\s+emails?`)

// SenderHandler answers "emails from X" questions.
type SenderHandler struct {
	store out.MessageStore
	llm   out.LLM
}

// NewSenderHandler constructs a SenderHandler.
func NewSenderHandler(store out.MessageStore, llm out.LLM) *SenderHandler {
	return &SenderHandler{store: store, llm: llm}
}

// Handle extracts a sender and a result cap, then lists matching messages.
func (h *SenderHandler) Handle(ctx context.Context, question string, history []domain.ChatMessage) Result {
	limit := parseResultCap(question, defaultSenderLimit)

	sender := h.extractSender(ctx, question, history)
	if sender == "" {
		return Result{
			Answer:     "I couldn't tell which sender you mean. Could you name them specifically?",
			Question:   question,
			Confidence: domain.ConfidenceNone,
			QueryType:  domain.QuerySearchBySender,
		}
	}

	msgs, err := h.store.SearchBySender(ctx, sender, limit)
	if err != nil {
		return errResult(question, domain.QuerySearchBySender, err)
	}
	return Result{
		Answer:     fmt.Sprintf("Found %d emails from %s.", len(msgs), sender),
		Sources:    sourcesFrom(msgs, 1.0),
		Question:   question,
		Confidence: confidenceFor(len(msgs)),
		QueryType:  domain.QuerySearchBySender,
	}
}

func parseResultCap(question string, def int) int {
	m := resultCapPattern.FindStringSubmatch(question)
	if m == nil {
		return def
	}
	raw := m[1]
	if raw == "" {
		raw = m[2]
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < 1 {
		return 1
	}
	if n > 100 {
		return 100
	}
	return n
}

func (h *SenderHandler) extractSender(ctx context.Context, question string, history []domain.ChatMessage) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	if recent := textutil.RecentHistory(history, 2); recent != "" {
		b.WriteString("\n\nRecent conversation:\n")
		b.WriteString(recent)
	}

	raw, err := h.llm.Classify(ctx,
		"Extract the sender name or email address the user is asking about. Respond with only that sender, nothing else.",
		b.String())
	if err != nil {
		return ""
	}
	tok := strings.TrimSpace(textutil.StripPreamble(raw, senderPreambles))
	tok = strings.Trim(tok, "\"'. ")
	if tok == "" || isBannedExtraction(strings.ToLower(textutil.FirstToken(tok))) {
		return ""
	}
	return tok
}
