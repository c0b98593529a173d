package contextbuilder

import (
	"strings"
	"testing"

	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
)

func TestBuildEmpty(t *testing.T) {
	if got := Build(nil); got != "No relevant emails found." {
		t.Fatalf("got %q", got)
	}
}

func TestBuildWrapMessagesOmitsRelevance(t *testing.T) {
	msgs := []*domain.Message{
		{ID: "1", Subject: "Hello", Sender: "a@b.com", Snippet: "hi there", InternalTS: 1700000000000},
	}
	got := Build(WrapMessages(msgs))
	if strings.Contains(got, "Relevance") {
		t.Fatalf("unscored item should omit relevance: %q", got)
	}
	if !strings.HasPrefix(got, "Email 1:\n") {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(got, "Subject: Hello") || !strings.Contains(got, "From: a@b.com") {
		t.Fatalf("got %q", got)
	}
}

func TestBuildWrapScoredIncludesRelevance(t *testing.T) {
	scored := []out.ScoredMessage{
		{Message: &domain.Message{ID: "1", Subject: "Hi", Sender: "a@b.com"}, Score: 0.873},
	}
	got := Build(WrapScored(scored))
	if !strings.Contains(got, "(Relevance: 0.87)") {
		t.Fatalf("got %q", got)
	}
}

func TestBuildPreservesOrderAndFallbacks(t *testing.T) {
	msgs := []*domain.Message{
		{ID: "1", Subject: "First"},
		{ID: "2", Subject: "Second"},
	}
	got := Build(WrapMessages(msgs))
	firstIdx := strings.Index(got, "Email 1:")
	secondIdx := strings.Index(got, "Email 2:")
	if firstIdx < 0 || secondIdx < 0 || secondIdx < firstIdx {
		t.Fatalf("expected Email 1 before Email 2, got %q", got)
	}
	if !strings.Contains(got, "From: Unknown") {
		t.Fatalf("expected sender fallback, got %q", got)
	}
	if !strings.Contains(got, "Date: Unknown") {
		t.Fatalf("expected date fallback, got %q", got)
	}
	if !strings.Contains(got, "No content available") {
		t.Fatalf("expected content fallback, got %q", got)
	}
}
