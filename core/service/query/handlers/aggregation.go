package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
	"github.com/bbangmxn/mailintel/core/service/query/textutil"
)

var topicPreambles = []string{"the topic is", "topic:", "about:"}

// AggregationHandler answers count and statistics questions, routing to one of six sub-strategies in order.
type AggregationHandler struct {
	store out.MessageStore
	llm   out.LLM
}

// NewAggregationHandler constructs an AggregationHandler.
func NewAggregationHandler(store out.MessageStore, llm out.LLM) *AggregationHandler {
	return &AggregationHandler{store: store, llm: llm}
}

// Handle implements first-match-wins routing over the supported
// aggregate question shapes.
func (h *AggregationHandler) Handle(ctx context.Context, question string, history []domain.ChatMessage) Result {
	lower := strings.ToLower(question)

	switch {
	case strings.HasPrefix(lower, "how many") && !isDailyUnreadTotal(lower):
		return h.topicCount(ctx, question, lower)
	case containsPhrase(lower, "top senders", "who emails me most", "most frequent sender"):
		return h.topSenders(ctx, question, history)
	case containsPhrase(lower, "per day", "daily"):
		return h.dailyStats(ctx, question)
	case strings.Contains(lower, "unread"):
		return h.unreadCount(ctx, question)
	case strings.Contains(lower, "total"):
		return h.totalCount(ctx, question)
	default:
		return h.generic(ctx, question)
	}
}

func isDailyUnreadTotal(lower string) bool {
	return strings.Contains(lower, "per day") || strings.Contains(lower, "daily") ||
		strings.Contains(lower, "unread") || strings.Contains(lower, "total")
}

func containsPhrase(s string, phrases ...string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func (h *AggregationHandler) topicCount(ctx context.Context, question, lower string) Result {
	topic := h.extractTopic(ctx, question)
	if topic == "" {
		kws := textutil.Keywords(question, 1)
		if len(kws) > 0 {
			topic = kws[0]
		}
	}
	if topic == "" {
		return h.generic(ctx, question)
	}

	n, err := h.store.CountByTopic(ctx, topic)
	if err != nil {
		return errResult(question, domain.QueryAggregation, err)
	}
	return Result{
		Answer:     fmt.Sprintf("You have %d emails related to '%s'.", n, topic),
		Question:   question,
		Confidence: confidenceFor(n),
		QueryType:  domain.QueryAggregation,
		TotalCount: n,
	}
}

func (h *AggregationHandler) extractTopic(ctx context.Context, question string) string {
	raw, err := h.llm.Classify(ctx,
		"Extract the single topic or subject the user is asking a count about. Respond with only that topic, nothing else.",
		question)
	if err != nil {
		return ""
	}
	tok := textutil.NormalizeToken(textutil.FirstToken(textutil.StripPreamble(raw, topicPreambles)))
	if isBannedExtraction(tok) {
		return ""
	}
	return tok
}

func (h *AggregationHandler) topSenders(ctx context.Context, question string, history []domain.ChatMessage) Result {
	if topic := h.topicFromHistory(history); topic != "" {
		msgs, err := h.store.SearchByKeywords(ctx, []string{topic}, 200)
		if err == nil && len(msgs) > 0 {
			counts := groupBySender(msgs)
			return Result{
				Answer:     "Top senders about " + topic + ":\n" + formatSenderCountList(counts),
				Question:   question,
				Confidence: confidenceFor(len(counts)),
				QueryType:  domain.QueryAggregation,
			}
		}
	}

	counts, err := h.store.GetTopSenders(ctx, 10)
	if err != nil {
		return errResult(question, domain.QueryAggregation, err)
	}
	return Result{
		Answer:     "Top senders:\n" + formatSenderCountList(counts),
		Question:   question,
		Confidence: confidenceFor(len(counts)),
		QueryType:  domain.QueryAggregation,
	}
}

// topicFromHistory looks for an "about X" pattern in the recent user turns,
// letting a follow-up like "what about finance" scope a top-senders query.
func (h *AggregationHandler) topicFromHistory(history []domain.ChatMessage) string {
	recent := textutil.RecentHistory(history, 2)
	idx := strings.LastIndex(strings.ToLower(recent), "about ")
	if idx < 0 {
		return ""
	}
	rest := recent[idx+len("about "):]
	if nl := strings.IndexAny(rest, "\n."); nl >= 0 {
		rest = rest[:nl]
	}
	return strings.TrimSpace(rest)
}

func groupBySender(msgs []*domain.Message) []out.SenderCount {
	totals := make(map[string]int)
	for _, m := range msgs {
		totals[m.Sender]++
	}
	counts := make([]out.SenderCount, 0, len(totals))
	for s, n := range totals {
		counts = append(counts, out.SenderCount{Sender: s, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Count > counts[j].Count })
	if len(counts) > 10 {
		counts = counts[:10]
	}
	return counts
}

func formatSenderCountList(counts []out.SenderCount) string {
	var b strings.Builder
	for i, c := range counts {
		fmt.Fprintf(&b, "%d. %s (%d)\n", i+1, c.Sender, c.Count)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *AggregationHandler) dailyStats(ctx context.Context, question string) Result {
	stats, err := h.store.GetDailyEmailStats(ctx, 30)
	if err != nil {
		return errResult(question, domain.QueryAggregation, err)
	}
	if len(stats) == 0 {
		return Result{Answer: "No email activity in the last 30 days.", Question: question, Confidence: domain.ConfidenceNone, QueryType: domain.QueryAggregation}
	}
	total := 0
	for _, s := range stats {
		total += s.Count
	}
	mean := float64(total) / float64(len(stats))
	return Result{
		Answer:     fmt.Sprintf("You receive an average of %.1f emails per day over the last %d days.", mean, len(stats)),
		Question:   question,
		Confidence: domain.ConfidenceHigh,
		QueryType:  domain.QueryAggregation,
	}
}

func (h *AggregationHandler) unreadCount(ctx context.Context, question string) Result {
	n, err := h.store.GetUnreadCount(ctx)
	if err != nil {
		return errResult(question, domain.QueryAggregation, err)
	}
	return Result{
		Answer:     fmt.Sprintf("You have %d unread emails.", n),
		Question:   question,
		Confidence: domain.ConfidenceHigh,
		QueryType:  domain.QueryAggregation,
		TotalCount: n,
	}
}

func (h *AggregationHandler) totalCount(ctx context.Context, question string) Result {
	n, err := h.store.GetTotalMessageCount(ctx)
	if err != nil {
		return errResult(question, domain.QueryAggregation, err)
	}
	return Result{
		Answer:     fmt.Sprintf("You have %d emails in total.", n),
		Question:   question,
		Confidence: domain.ConfidenceHigh,
		QueryType:  domain.QueryAggregation,
		TotalCount: n,
	}
}

func (h *AggregationHandler) generic(ctx context.Context, question string) Result {
	n, err := h.store.GetTotalMessageCount(ctx)
	if err != nil {
		return errResult(question, domain.QueryAggregation, err)
	}
	return Result{
		Answer:     fmt.Sprintf("You have %d emails in total. Could you clarify what you'd like counted specifically?", n),
		Question:   question,
		Confidence: domain.ConfidenceLow,
		QueryType:  domain.QueryAggregation,
		TotalCount: n,
	}
}
