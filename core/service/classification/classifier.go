// Package classification implements the email classifier: an LLM-backed
// {labels, priority, summary} extraction over a fixed label whitelist,
// plus a set of cost-saving short-circuits layered on top as an
// optimization pipeline.
package classification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
	"github.com/bbangmxn/mailintel/pkg/apperr"
)

// bodyPrefixChars is how much of the body is included in the user prompt.
const bodyPrefixChars = 2000

// Result is the classifier's output shape, exactly {labels, priority, summary}.
type Result struct {
	Labels   []string
	Priority domain.Priority
	Summary  string
}

// Classifier produces a Result for one (subject, body) pair via the LLM
// Gateway. Grounded on an LLM classification call shape
// (worker_llm_score_classifier.go's Classify), generalized to the
// exact three-field contract instead of a continuous score.
type Classifier struct {
	llm out.LLM
}

// New constructs a Classifier over the given LLM Gateway.
func New(llm out.LLM) *Classifier {
	return &Classifier{llm: llm}
}

// Classify builds the prompt, invokes the LLM, and normalizes the response
// six-step procedure. A parse or provider error
// is returned to the caller as a classification error; the caller (Sync
// Controller) is responsible for counting it and continuing.
func (c *Classifier) Classify(ctx context.Context, subject, body string) (Result, error) {
	system := systemPrompt()
	user := userPrompt(subject, body)

	raw, err := c.llm.Classify(ctx, system, user)
	if err != nil {
		return Result{}, apperr.TransientExternal("classifier LLM call failed", err)
	}

	result, err := normalize(raw)
	if err != nil {
		return Result{}, apperr.Wrap(err, apperr.CodeInvalidInput, "classifier response normalization failed", http.StatusBadRequest)
	}
	return result, nil
}

func systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are an email classification assistant. ")
	b.WriteString("Given an email's subject and body, determine which of the following labels apply, ")
	b.WriteString("how urgent it is, and a one or two sentence summary.\n\n")
	b.WriteString("Allowed labels: ")
	b.WriteString(strings.Join(sortedWhitelist(), ", "))
	b.WriteString(".\n")
	return b.String()
}

func userPrompt(subject, body string) string {
	if len(body) > bodyPrefixChars {
		body = body[:bodyPrefixChars]
	}
	return fmt.Sprintf(
		"Subject: %s\n\nBody:\n%s\n\nReturn only a JSON object of the exact shape "+
			`{"labels": [...], "priority": "high"|"normal"|"low", "summary": "..."}. No other text.`,
		subject, body,
	)
}

func sortedWhitelist() []string {
	labels := make([]string, 0, len(domain.LabelWhitelist))
	for l := range domain.LabelWhitelist {
		labels = append(labels, l)
	}
	// Deterministic order for reproducible prompts.
	for i := 1; i < len(labels); i++ {
		for j := i; j > 0 && labels[j] < labels[j-1]; j-- {
			labels[j], labels[j-1] = labels[j-1], labels[j]
		}
	}
	return labels
}

// rawResponse mirrors the exact JSON shape the prompt requests, plus the
// legacy singular "label" key the normalization procedure must migrate.
type rawResponse struct {
	Labels   json.RawMessage `json:"labels"`
	Label    json.RawMessage `json:"label"`
	Priority string          `json:"priority"`
	Summary  string          `json:"summary"`
}

// normalize implements the response-normalization steps.
func normalize(raw string) (Result, error) {
	stripped := stripCodeFences(raw)

	var resp rawResponse
	if err := json.Unmarshal([]byte(stripped), &resp); err != nil {
		return Result{}, fmt.Errorf("parse classifier response as JSON: %w", err)
	}

	labels := resp.Labels
	if len(labels) == 0 && len(resp.Label) > 0 {
		labels = resp.Label
	}

	labelList, err := coerceToStringList(labels)
	if err != nil {
		return Result{}, fmt.Errorf("coerce labels: %w", err)
	}

	return Result{
		Labels:   domain.FilterLabelsToWhitelist(labelList),
		Priority: domain.NormalizePriority(strings.ToLower(resp.Priority)),
		Summary:  resp.Summary,
	}, nil
}

// stripCodeFences removes a leading/trailing Markdown code fence, generic
// or JSON-tagged.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// coerceToStringList handles the {labels: [...]} list case, the
// legacy {label: "a, b"} comma-split case, and the {label: "a"} scalar
// wrap case.
func coerceToStringList(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var scalar string
	if err := json.Unmarshal(raw, &scalar); err == nil {
		if strings.Contains(scalar, ",") {
			parts := strings.Split(scalar, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			return parts, nil
		}
		return []string{scalar}, nil
	}

	return nil, fmt.Errorf("labels field is neither a list nor a string")
}
