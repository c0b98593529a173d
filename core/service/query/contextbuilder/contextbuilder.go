// Package contextbuilder renders the retrieved messages a query handler
// found into the numbered text block the LLM Gateway sees alongside the
// question. It sits below both the query package
// and its handlers subpackage so either can import it without a cycle.
package contextbuilder

import (
	"fmt"
	"strings"
	"time"

	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
	"github.com/bbangmxn/mailintel/core/service/mailtext"
)

// Item pairs a message with an optional relevance score. A nil Score
// omits the "(Relevance: …)" suffix entirely, matching non-semantic
// handlers that have no similarity figure to report.
type Item struct {
	Message *domain.Message
	Score   *float64
}

// WrapMessages lifts plain messages with no relevance score attached.
func WrapMessages(msgs []*domain.Message) []Item {
	items := make([]Item, len(msgs))
	for i, m := range msgs {
		items[i] = Item{Message: m}
	}
	return items
}

// WrapScored lifts scored messages from a similarity, hybrid, or rerank
// search.
func WrapScored(scored []out.ScoredMessage) []Item {
	items := make([]Item, len(scored))
	for i, sm := range scored {
		score := sm.Score
		items[i] = Item{Message: sm.Message, Score: &score}
	}
	return items
}

// Build emits a numbered block per item, preserving input order exactly.
// Full-body text (derived from the stored payload) is preferred over the
// snippet whenever it's available.
func Build(items []Item) string {
	if len(items) == 0 {
		return "No relevant emails found."
	}

	var b strings.Builder
	for i, item := range items {
		m := item.Message

		fmt.Fprintf(&b, "Email %d", i+1)
		if item.Score != nil {
			fmt.Fprintf(&b, " (Relevance: %.2f)", *item.Score)
		}
		b.WriteString(":\n")

		subject := m.Subject
		if subject == "" {
			subject = "No subject"
		}
		fmt.Fprintf(&b, "Subject: %s\n", subject)

		from := m.Sender
		if from == "" {
			from = "Unknown"
		}
		fmt.Fprintf(&b, "From: %s\n", from)

		fmt.Fprintf(&b, "Date: %s\n", formatDate(m.InternalTS))

		content := mailtext.ExtractPlainText(m.Payload, m.Snippet)
		if content == "" {
			content = "No content available"
		}
		fmt.Fprintf(&b, "Content: %s\n\n", content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatDate(ms int64) string {
	if ms <= 0 {
		return "Unknown"
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}
