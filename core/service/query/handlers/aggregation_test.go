package handlers

import (
	"context"
	"strings"
	"testing"

	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
)

func TestAggregationHandlerTopicCount(t *testing.T) {
	store := &fakeStore{countByTopic: 7}
	h := NewAggregationHandler(store, &fakeLLM{classifyReply: "topic: invoices"})
	got := h.Handle(context.Background(), "How many invoice emails do I have?", nil)
	if got.TotalCount != 7 || !strings.Contains(got.Answer, "invoices") {
		t.Fatalf("got %+v", got)
	}
	if got.QueryType != domain.QueryAggregation {
		t.Fatalf("got %v", got.QueryType)
	}
}

func TestAggregationHandlerTopSenders(t *testing.T) {
	store := &fakeStore{topSenders: []out.SenderCount{{Sender: "a@b.com", Count: 5}, {Sender: "c@d.com", Count: 2}}}
	h := NewAggregationHandler(store, &fakeLLM{})
	got := h.Handle(context.Background(), "who are my top senders", nil)
	if !strings.Contains(got.Answer, "a@b.com (5)") {
		t.Fatalf("got %q", got.Answer)
	}
}

func TestAggregationHandlerUnread(t *testing.T) {
	store := &fakeStore{unreadCount: 3}
	h := NewAggregationHandler(store, &fakeLLM{})
	got := h.Handle(context.Background(), "how many unread emails do I have", nil)
	if got.TotalCount != 3 || !strings.Contains(got.Answer, "3 unread") {
		t.Fatalf("got %+v", got)
	}
}

func TestAggregationHandlerTotal(t *testing.T) {
	store := &fakeStore{totalCount: 42}
	h := NewAggregationHandler(store, &fakeLLM{})
	got := h.Handle(context.Background(), "what is my total email count", nil)
	if got.TotalCount != 42 {
		t.Fatalf("got %+v", got)
	}
}

func TestAggregationHandlerDailyStats(t *testing.T) {
	store := &fakeStore{dailyStats: []out.DailyStat{{Date: "2026-01-01", Count: 10}, {Date: "2026-01-02", Count: 20}}}
	h := NewAggregationHandler(store, &fakeLLM{})
	got := h.Handle(context.Background(), "how many emails do I get per day", nil)
	if !strings.Contains(got.Answer, "15.0") {
		t.Fatalf("got %q", got.Answer)
	}
}

func TestAggregationHandlerGenericFallback(t *testing.T) {
	store := &fakeStore{totalCount: 9}
	h := NewAggregationHandler(store, &fakeLLM{})
	got := h.Handle(context.Background(), "tell me about my emails", nil)
	if got.Confidence != domain.ConfidenceLow {
		t.Fatalf("got %+v", got)
	}
}

func TestAggregationHandlerStoreError(t *testing.T) {
	store := &fakeStore{err: errStore, totalCount: 1}
	h := NewAggregationHandler(store, &fakeLLM{})
	got := h.Handle(context.Background(), "how many unread emails do I have", nil)
	if got.Confidence != domain.ConfidenceNone {
		t.Fatalf("got %+v", got)
	}
}
