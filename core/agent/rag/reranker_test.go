package rag

import (
	"context"
	"testing"

	"github.com/bbangmxn/mailintel/core/domain"
)

func TestRerankOrdersByOverlap(t *testing.T) {
	r := NewReranker()
	candidates := []*domain.Message{
		{ID: "1", Subject: "Weekly newsletter", Snippet: "nothing relevant here"},
		{ID: "2", Subject: "Invoice from vendor", Snippet: "your invoice payment is due"},
		{ID: "3", Subject: "Invoice payment reminder", Snippet: "invoice payment overdue notice"},
	}

	ranked := r.Rerank(context.Background(), "invoice payment overdue", candidates, 10)
	if len(ranked) != 3 {
		t.Fatalf("got %d results, want 3", len(ranked))
	}
	if ranked[0].Message.ID != "3" {
		t.Fatalf("expected message 3 ranked first, got %s", ranked[0].Message.ID)
	}
	if ranked[len(ranked)-1].Message.ID != "1" {
		t.Fatalf("expected message 1 ranked last, got %s", ranked[len(ranked)-1].Message.ID)
	}
}

func TestRerankTruncatesToLimit(t *testing.T) {
	r := NewReranker()
	candidates := []*domain.Message{
		{ID: "1", Subject: "a"}, {ID: "2", Subject: "b"}, {ID: "3", Subject: "c"},
	}
	ranked := r.Rerank(context.Background(), "query", candidates, 2)
	if len(ranked) != 2 {
		t.Fatalf("got %d, want 2", len(ranked))
	}
}

func TestRerankEmptyCandidates(t *testing.T) {
	r := NewReranker()
	ranked := r.Rerank(context.Background(), "query", nil, 10)
	if len(ranked) != 0 {
		t.Fatalf("got %d, want 0", len(ranked))
	}
}
