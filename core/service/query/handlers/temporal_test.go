package handlers

import (
	"context"
	"testing"

	"github.com/bbangmxn/mailintel/core/domain"
)

func TestTemporalHandlerPlainList(t *testing.T) {
	store := &fakeStore{listMessages: []*domain.Message{{ID: "1"}, {ID: "2"}}}
	h := NewTemporalHandler(store, &fakeLLM{})
	got := h.Handle(context.Background(), "what came in yesterday", domain.QueryTemporal, 10)
	if len(got.Sources) != 2 {
		t.Fatalf("got %+v", got)
	}
}

func TestTemporalHandlerFilteredUsesKeywords(t *testing.T) {
	store := &fakeStore{byKeywords: []*domain.Message{{ID: "1"}}}
	h := NewTemporalHandler(store, &fakeLLM{classifyReply: "keywords: invoices"})
	got := h.Handle(context.Background(), "show me recent invoices", domain.QueryFilteredTemporal, 10)
	if len(got.Sources) != 1 {
		t.Fatalf("got %+v", got)
	}
}

func TestTemporalHandlerFilteredDegradesWithoutKeywords(t *testing.T) {
	store := &fakeStore{listMessages: []*domain.Message{{ID: "1"}, {ID: "2"}, {ID: "3"}}}
	h := NewTemporalHandler(store, &fakeLLM{classifyErr: errStore})
	got := h.Handle(context.Background(), "what about that", domain.QueryFilteredTemporal, 10)
	if len(got.Sources) != 3 {
		t.Fatalf("got %+v", got)
	}
}
