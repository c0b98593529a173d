package llm

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"math"
	"strings"

	"github.com/bbangmxn/mailintel/core/domain"
)

// rulesClient is the offline fallback provider:
// deterministic keyword scoring in place of an LLM call, and a
// deterministic hash-seeded vector in place of a real embedding model.
// Grounded on a score-based classification pipeline
// (core/service/classification/worker_llm_score_classifier.go), adapted
// from "LLM output" to "no LLM available" rather than "LLM fallback stage".
type rulesClient struct{}

func newRulesClient() *rulesClient {
	return &rulesClient{}
}

var keywordLabels = map[string][]string{
	"finance":          {"invoice", "payment", "statement", "balance", "transaction"},
	"banking":          {"bank", "account", "transfer", "wire"},
	"job-application":  {"application received", "thank you for applying"},
	"job-rejection":    {"unfortunately", "not moving forward", "other candidates"},
	"job-offer":        {"offer letter", "pleased to offer", "welcome to the team"},
	"meetings":         {"meeting", "calendar invite", "schedule a call"},
	"promotions":       {"% off", "sale", "discount", "limited time"},
	"receipts":         {"receipt", "order confirmation", "your order"},
	"spam":             {"unsubscribe now", "you have won", "act now"},
	"newsletter":       {"newsletter", "weekly digest", "this week in"},
	"shipping":         {"shipped", "tracking number", "out for delivery"},
	"travel":           {"itinerary", "boarding pass", "flight confirmation"},
	"security":         {"security alert", "suspicious sign-in", "verify your identity"},
	"verification":     {"verify your email", "confirm your account", "verification code"},
	"password-reset":   {"reset your password", "password reset request"},
	"subscriptions":    {"subscription", "renews on", "auto-renew"},
	"invoices":         {"invoice attached", "invoice #", "amount due"},
}

var highPrioritySignals = []string{"urgent", "action required", "deadline", "asap", "important"}
var lowPrioritySignals = []string{"newsletter", "unsubscribe", "no reply needed", "fyi"}

// Classify produces a deterministic {labels, priority, summary} JSON payload
// from keyword matches in system+user text, used when no real LLM
// provider is configured.
func (c *rulesClient) Classify(_ context.Context, system, user string) (string, error) {
	text := strings.ToLower(system + "\n" + user)

	var labels []string
	for label, keywords := range keywordLabels {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				labels = append(labels, label)
				break
			}
		}
	}
	labels = domain.FilterLabelsToWhitelist(labels)

	priority := domain.PriorityNormal
	for _, kw := range highPrioritySignals {
		if strings.Contains(text, kw) {
			priority = domain.PriorityHigh
			break
		}
	}
	if priority == domain.PriorityNormal {
		for _, kw := range lowPrioritySignals {
			if strings.Contains(text, kw) {
				priority = domain.PriorityLow
				break
			}
		}
	}

	out := struct {
		Labels   []string `json:"labels"`
		Priority string   `json:"priority"`
		Summary  string   `json:"summary"`
	}{
		Labels:   labels,
		Priority: string(priority),
		Summary:  summarize(user),
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Invoke returns a short deterministic echo; there is no model to ask.
func (c *rulesClient) Invoke(_ context.Context, prompt string) (string, error) {
	return summarize(prompt), nil
}

// summarize takes the first sentence-ish slice of text, capped at 280
// characters, as a cheap stand-in for an LLM-produced summary.
func summarize(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexAny(text, ".\n"); idx > 0 && idx < 280 {
		return strings.TrimSpace(text[:idx+1])
	}
	if len(text) > 280 {
		return text[:280]
	}
	return text
}

// EmbedText produces a deterministic unit vector from a hash of the text,
// so retrieval still functions end to end without a real embedding model.
func (c *rulesClient) EmbedText(_ context.Context, text string) ([]float32, error) {
	return hashEmbedding(text), nil
}

// EmbedBatch embeds each text independently.
func (c *rulesClient) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashEmbedding(t)
	}
	return out, nil
}

func hashEmbedding(text string) []float32 {
	vec := make([]float32, domain.EmbeddingDim)
	h := fnv.New64a()
	state := uint64(0)

	for i := 0; i < domain.EmbeddingDim; i++ {
		h.Reset()
		h.Write([]byte(text))
		h.Write([]byte{byte(i), byte(i >> 8)})
		state = h.Sum64()
		vec[i] = float32(int64(state%2000)-1000) / 1000.0
	}

	norm := float32(0)
	for _, v := range vec {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
