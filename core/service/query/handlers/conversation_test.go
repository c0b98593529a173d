package handlers

import (
	"context"
	"testing"

	"github.com/bbangmxn/mailintel/core/domain"
)

func TestConversationHandlerUsesLLMReply(t *testing.T) {
	h := NewConversationHandler(&fakeLLM{invokeReply: "Sure, happy to help!"})
	got := h.Handle(context.Background(), "hi there")
	if got.Answer != "Sure, happy to help!" {
		t.Fatalf("got %q", got.Answer)
	}
	if got.QueryType != domain.QueryConversation || got.Confidence != domain.ConfidenceHigh {
		t.Fatalf("got %+v", got)
	}
	if got.Sources != nil {
		t.Fatalf("expected no sources, got %v", got.Sources)
	}
}

func TestConversationHandlerFallsBackOnError(t *testing.T) {
	h := NewConversationHandler(&fakeLLM{invokeErr: errStore})
	got := h.Handle(context.Background(), "hello")
	if got.Answer != "Hello! How can I help you with your email today?" {
		t.Fatalf("got %q", got.Answer)
	}
}

func TestConversationHandlerFallsBackOnEmptyReply(t *testing.T) {
	h := NewConversationHandler(&fakeLLM{invokeReply: "  "})
	got := h.Handle(context.Background(), "thanks a lot")
	if got.Answer != "You're welcome!" {
		t.Fatalf("got %q", got.Answer)
	}
}
