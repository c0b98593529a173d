package handlers

import (
	"context"
	"testing"

	"github.com/bbangmxn/mailintel/core/agent/embed"
	"github.com/bbangmxn/mailintel/core/agent/rag"
	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	return f.vector, f.err
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	vs := make([][]float32, len(texts))
	for i := range texts {
		vs[i] = f.vector
	}
	return vs, f.err
}

func TestSemanticHandlerHybridPath(t *testing.T) {
	store := &fakeStore{hybridResult: []out.ScoredMessage{
		{Message: &domain.Message{ID: "1", Subject: "Quarterly report"}, Score: 0.9},
	}}
	eng := embed.New(&fakeEmbedder{vector: []float32{0.1, 0.2}})
	h := NewSemanticHandler(store, eng, &fakeLLM{invokeReply: "Here's what I found."}, rag.NewReranker(), true)

	got := h.Handle(context.Background(), "what did the quarterly report say", 10, 0.5, nil)
	if got.Confidence != domain.ConfidenceHigh {
		t.Fatalf("got %+v", got)
	}
	if len(got.Sources) != 1 {
		t.Fatalf("got %+v", got.Sources)
	}
}

func TestSemanticHandlerSimilarityRerankPath(t *testing.T) {
	store := &fakeStore{similarityResult: []out.ScoredMessage{
		{Message: &domain.Message{ID: "1", Subject: "Invoice payment due", Snippet: "your invoice is due"}, Score: 0.5},
	}}
	eng := embed.New(&fakeEmbedder{vector: []float32{0.1}})
	h := NewSemanticHandler(store, eng, &fakeLLM{invokeReply: "Your invoice is due soon."}, rag.NewReranker(), false)

	got := h.Handle(context.Background(), "when is my invoice due", 10, 0.5, nil)
	if len(got.Sources) != 1 {
		t.Fatalf("got %+v", got.Sources)
	}
}

func TestSemanticHandlerNoResults(t *testing.T) {
	store := &fakeStore{}
	eng := embed.New(&fakeEmbedder{vector: []float32{0.1}})
	h := NewSemanticHandler(store, eng, &fakeLLM{}, rag.NewReranker(), true)

	got := h.Handle(context.Background(), "anything about unicorns", 10, 0.5, nil)
	if got.Confidence != domain.ConfidenceNone {
		t.Fatalf("got %+v", got)
	}
}

func TestSemanticHandlerEmbedError(t *testing.T) {
	store := &fakeStore{}
	eng := embed.New(&fakeEmbedder{err: errStore})
	h := NewSemanticHandler(store, eng, &fakeLLM{}, rag.NewReranker(), true)

	got := h.Handle(context.Background(), "anything", 10, 0.5, nil)
	if got.Confidence != domain.ConfidenceNone {
		t.Fatalf("got %+v", got)
	}
}
