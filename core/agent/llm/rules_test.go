package llm

import (
	"context"
	"encoding/json"
	"testing"
)

func TestRulesClient_Classify(t *testing.T) {
	tests := []struct {
		name         string
		system       string
		user         string
		wantPriority string
		wantLabel    string
	}{
		{
			name:         "urgent signal raises priority",
			system:       "classify this email",
			user:         "This is urgent, action required by EOD",
			wantPriority: "high",
		},
		{
			name:         "newsletter keyword lowers priority",
			system:       "classify",
			user:         "Check out this week's newsletter digest",
			wantPriority: "low",
			wantLabel:    "newsletter",
		},
		{
			name:         "no signals default normal",
			system:       "classify",
			user:         "Hi, just checking in on the project status.",
			wantPriority: "normal",
		},
	}

	c := newRulesClient()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := c.Classify(context.Background(), tt.system, tt.user)
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}

			var parsed struct {
				Labels   []string `json:"labels"`
				Priority string   `json:"priority"`
				Summary  string   `json:"summary"`
			}
			if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
				t.Fatalf("Classify() returned invalid JSON: %v", err)
			}

			if parsed.Priority != tt.wantPriority {
				t.Errorf("priority = %q, want %q", parsed.Priority, tt.wantPriority)
			}
			if tt.wantLabel != "" {
				found := false
				for _, l := range parsed.Labels {
					if l == tt.wantLabel {
						found = true
					}
				}
				if !found {
					t.Errorf("labels = %v, want to contain %q", parsed.Labels, tt.wantLabel)
				}
			}
		})
	}
}

func TestRulesClient_EmbedText_Deterministic(t *testing.T) {
	c := newRulesClient()

	v1, err := c.EmbedText(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("EmbedText() error = %v", err)
	}
	v2, err := c.EmbedText(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("EmbedText() error = %v", err)
	}

	if len(v1) != len(v2) {
		t.Fatalf("len mismatch: %d vs %d", len(v1), len(v2))
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("embedding not deterministic at index %d: %v vs %v", i, v1[i], v2[i])
		}
	}
}

func TestRulesClient_EmbedText_DifferentInputsDiffer(t *testing.T) {
	c := newRulesClient()

	v1, _ := c.EmbedText(context.Background(), "hello world")
	v2, _ := c.EmbedText(context.Background(), "goodbye world")

	same := true
	for i := range v1 {
		if v1[i] != v2[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("expected different texts to produce different embeddings")
	}
}

func TestRulesClient_EmbedBatch(t *testing.T) {
	c := newRulesClient()
	vectors, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("len(vectors) = %d, want 3", len(vectors))
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"short text returned as-is", "hi there", "hi there"},
		{"first sentence extracted", "First sentence. Second sentence.", "First sentence."},
		{"long text truncated", string(make([]byte, 400)), string(make([]byte, 280))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := summarize(tt.text)
			if len(tt.want) == 280 {
				if len(got) != 280 {
					t.Errorf("len(summarize()) = %d, want 280", len(got))
				}
				return
			}
			if got != tt.want {
				t.Errorf("summarize(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}
