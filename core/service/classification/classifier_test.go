package classification

import (
	"context"
	"testing"

	"github.com/bbangmxn/mailintel/core/domain"
)

type fakeLLM struct {
	classifyResponse string
	classifyErr      error
	gotSystem        string
	gotUser          string
}

func (f *fakeLLM) Invoke(_ context.Context, _ string) (string, error) { return "", nil }

func (f *fakeLLM) Classify(_ context.Context, system, user string) (string, error) {
	f.gotSystem = system
	f.gotUser = user
	return f.classifyResponse, f.classifyErr
}

func TestClassifier_Classify_HappyPath(t *testing.T) {
	llm := &fakeLLM{classifyResponse: `{"labels": ["finance", "unknown-label"], "priority": "HIGH", "summary": "An invoice."}`}
	c := New(llm)

	result, err := c.Classify(context.Background(), "Invoice #123", "Please pay by Friday.")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	if len(result.Labels) != 1 || result.Labels[0] != "finance" {
		t.Errorf("Labels = %v, want [finance] (unknown-label dropped)", result.Labels)
	}
	if result.Priority != domain.PriorityHigh {
		t.Errorf("Priority = %q, want %q (case-insensitive)", result.Priority, domain.PriorityHigh)
	}
	if result.Summary != "An invoice." {
		t.Errorf("Summary = %q, want %q", result.Summary, "An invoice.")
	}

	if llm.gotUser == "" || llm.gotSystem == "" {
		t.Error("expected both system and user prompts to be populated")
	}
}

func TestClassifier_Classify_CodeFenceStripped(t *testing.T) {
	llm := &fakeLLM{classifyResponse: "```json\n{\"labels\": [\"spam\"], \"priority\": \"low\", \"summary\": \"junk\"}\n```"}
	c := New(llm)

	result, err := c.Classify(context.Background(), "You won!", "Click here now")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if len(result.Labels) != 1 || result.Labels[0] != "spam" {
		t.Errorf("Labels = %v, want [spam]", result.Labels)
	}
}

func TestClassifier_Classify_LegacySingularLabelMigrated(t *testing.T) {
	llm := &fakeLLM{classifyResponse: `{"label": "finance, shipping", "priority": "normal", "summary": "s"}`}
	c := New(llm)

	result, err := c.Classify(context.Background(), "s", "b")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	want := map[string]bool{"finance": true, "shipping": true}
	if len(result.Labels) != 2 {
		t.Fatalf("Labels = %v, want 2 entries", result.Labels)
	}
	for _, l := range result.Labels {
		if !want[l] {
			t.Errorf("unexpected label %q", l)
		}
	}
}

func TestClassifier_Classify_InvalidPriorityDefaultsNormal(t *testing.T) {
	llm := &fakeLLM{classifyResponse: `{"labels": [], "priority": "urgent!!", "summary": "s"}`}
	c := New(llm)

	result, err := c.Classify(context.Background(), "s", "b")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if result.Priority != domain.PriorityNormal {
		t.Errorf("Priority = %q, want %q", result.Priority, domain.PriorityNormal)
	}
}

func TestClassifier_Classify_InvalidJSONIsError(t *testing.T) {
	llm := &fakeLLM{classifyResponse: "not json at all"}
	c := New(llm)

	_, err := c.Classify(context.Background(), "s", "b")
	if err == nil {
		t.Fatal("expected a classification error for invalid JSON, got nil")
	}
}

func TestClassifier_Classify_ProviderErrorPropagates(t *testing.T) {
	llm := &fakeLLM{classifyErr: context.DeadlineExceeded}
	c := New(llm)

	_, err := c.Classify(context.Background(), "s", "b")
	if err == nil {
		t.Fatal("expected provider error to propagate, got nil")
	}
}

func TestUserPrompt_TruncatesBodyTo2000Chars(t *testing.T) {
	longBody := make([]byte, 5000)
	for i := range longBody {
		longBody[i] = 'a'
	}
	prompt := userPrompt("subj", string(longBody))
	if len(prompt) > bodyPrefixChars+500 {
		t.Errorf("prompt length = %d, expected body truncated near %d chars", len(prompt), bodyPrefixChars)
	}
}
