package handlers

import (
	"context"
	"testing"

	"github.com/bbangmxn/mailintel/core/domain"
)

func TestAttachmentHandlerUsesLLMSummary(t *testing.T) {
	store := &fakeStore{byAttachment: []*domain.Message{{ID: "1", Subject: "Invoice"}}}
	h := NewAttachmentHandler(store, &fakeLLM{invokeReply: "You have one invoice with an attachment."})
	got := h.Handle(context.Background(), "emails with attachments", 10)
	if got.Answer != "You have one invoice with an attachment." {
		t.Fatalf("got %q", got.Answer)
	}
	if len(got.Sources) != 1 {
		t.Fatalf("got %+v", got.Sources)
	}
}

func TestAttachmentHandlerFallsBackToCount(t *testing.T) {
	store := &fakeStore{byAttachment: []*domain.Message{{ID: "1"}, {ID: "2"}}}
	h := NewAttachmentHandler(store, &fakeLLM{invokeErr: errStore})
	got := h.Handle(context.Background(), "emails with attachments", 10)
	if got.Answer != "Found 2 emails with attachments." {
		t.Fatalf("got %q", got.Answer)
	}
}

func TestAttachmentHandlerNoneFound(t *testing.T) {
	store := &fakeStore{}
	h := NewAttachmentHandler(store, &fakeLLM{})
	got := h.Handle(context.Background(), "emails with attachments", 10)
	if got.Confidence != domain.ConfidenceNone {
		t.Fatalf("got %+v", got)
	}
}
