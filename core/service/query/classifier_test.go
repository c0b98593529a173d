package query

import (
	"context"
	"testing"

	"github.com/bbangmxn/mailintel/core/domain"
)

type fakeLLM struct {
	classifyReply string
	classifyErr   error
	invokeReply   string
	invokeErr     error
}

func (f *fakeLLM) Invoke(_ context.Context, _ string) (string, error) {
	return f.invokeReply, f.invokeErr
}

func (f *fakeLLM) Classify(_ context.Context, _, _ string) (string, error) {
	return f.classifyReply, f.classifyErr
}

func TestClassifyTermMapShortcut(t *testing.T) {
	c := NewClassifier(&fakeLLM{classifyReply: "should never be reached"})
	kind := c.Classify(context.Background(), "show me my finance emails", nil)
	if kind != domain.QueryClassification {
		t.Fatalf("got %v, want %v", kind, domain.QueryClassification)
	}
}

func TestClassifyParsesLLMReply(t *testing.T) {
	c := NewClassifier(&fakeLLM{classifyReply: "The query type is: aggregation"})
	kind := c.Classify(context.Background(), "how many emails do I have", nil)
	if kind != domain.QueryAggregation {
		t.Fatalf("got %v", kind)
	}
}

func TestClassifyAppliesShortMapSynonym(t *testing.T) {
	c := NewClassifier(&fakeLLM{classifyReply: "latest"})
	kind := c.Classify(context.Background(), "show me my emails", nil)
	if kind != domain.QueryFilteredTemporal {
		t.Fatalf("got %v", kind)
	}
}

func TestClassifyFallsBackToHeuristicOnLLMError(t *testing.T) {
	c := NewClassifier(&fakeLLM{classifyErr: errBoom})
	kind := c.Classify(context.Background(), "hello there", nil)
	if kind != domain.QueryConversation {
		t.Fatalf("got %v", kind)
	}
}

func TestClassifyFallsBackToHeuristicOnUnparseableReply(t *testing.T) {
	c := NewClassifier(&fakeLLM{classifyReply: "I'm not sure what you mean"})
	kind := c.Classify(context.Background(), "yesterday", nil)
	if kind != domain.QueryTemporal {
		t.Fatalf("got %v", kind)
	}
}

func TestHeuristicClassifyFilteredTemporal(t *testing.T) {
	kind := heuristicClassify("show me recent invoices")
	if kind != domain.QueryFilteredTemporal {
		t.Fatalf("got %v", kind)
	}
}

func TestHeuristicClassifyDefaultsToSemantic(t *testing.T) {
	kind := heuristicClassify("what did my manager say about the reorg")
	if kind != domain.QuerySemantic {
		t.Fatalf("got %v", kind)
	}
}

func TestIsFollowUpRequiresHistory(t *testing.T) {
	if IsFollowUp("what about it", nil) {
		t.Fatal("expected false with no history")
	}
}

func TestIsFollowUpDetectsPronoun(t *testing.T) {
	history := []domain.ChatMessage{{Role: domain.RoleUser, Content: "find invoices"}}
	if !IsFollowUp("tell me more about it", history) {
		t.Fatal("expected true")
	}
}

func TestIsFollowUpDetectsBareNumber(t *testing.T) {
	history := []domain.ChatMessage{{Role: domain.RoleUser, Content: "list my emails"}}
	if !IsFollowUp("open 3", history) {
		t.Fatal("expected true")
	}
}

var errBoom = fakeErr("boom")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }
