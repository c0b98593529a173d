package classification

import (
	"context"
	"testing"
	"time"

	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
)

type fakeCache struct {
	entries map[string]out.ClassificationCacheEntry
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]out.ClassificationCacheEntry)}
}

func (f *fakeCache) Get(_ context.Context, key string) (*out.ClassificationCacheEntry, bool, error) {
	e, ok := f.entries[key]
	if !ok {
		return nil, false, nil
	}
	return &e, true, nil
}

func (f *fakeCache) Set(_ context.Context, key string, entry out.ClassificationCacheEntry, _ time.Duration) error {
	f.entries[key] = entry
	f.sets++
	return nil
}

type fakeSenderStore struct {
	profiles map[string]*domain.SenderProfile
}

func newFakeSenderStore() *fakeSenderStore {
	return &fakeSenderStore{profiles: make(map[string]*domain.SenderProfile)}
}

func (f *fakeSenderStore) Get(_ context.Context, sender string) (*domain.SenderProfile, error) {
	return f.profiles[sender], nil
}

func (f *fakeSenderStore) RecordClassification(_ context.Context, sender string, labels []string, priority domain.Priority) error {
	p, ok := f.profiles[sender]
	if !ok {
		p = &domain.SenderProfile{Sender: sender}
		f.profiles[sender] = p
	}
	p.LastLabels = labels
	p.LastPriority = priority
	p.TotalClassified++
	p.StableStreak++
	return nil
}

func TestPipeline_Classify_FallsThroughToLLMWhenNoShortCircuit(t *testing.T) {
	llm := &fakeLLM{classifyResponse: `{"labels": ["finance"], "priority": "normal", "summary": "s"}`}
	p := NewPipeline(New(llm), nil, nil)

	result, err := p.Classify(context.Background(), Input{Subject: "Invoice", Body: "pay up"})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if len(result.Labels) != 1 || result.Labels[0] != "finance" {
		t.Errorf("Labels = %v, want [finance]", result.Labels)
	}
}

func TestPipeline_Classify_RFCShortCircuitSkipsLLM(t *testing.T) {
	llm := &fakeLLM{classifyResponse: `{"labels": ["finance"], "priority": "high", "summary": "wrong"}`}
	p := NewPipeline(New(llm), nil, nil)

	input := Input{
		Subject: "Weekly Digest",
		Body:    "news",
		Headers: []out.MailHeader{{Name: "List-Unsubscribe", Value: "<mailto:x@y.com>"}},
	}

	result, err := p.Classify(context.Background(), input)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if len(result.Labels) != 1 || result.Labels[0] != "newsletter" {
		t.Errorf("Labels = %v, want [newsletter] from RFC short-circuit", result.Labels)
	}
	if llm.gotUser != "" {
		t.Error("expected LLM not to be invoked when RFC short-circuit applies")
	}
}

func TestPipeline_Classify_CacheHitSkipsLLM(t *testing.T) {
	llm := &fakeLLM{classifyResponse: `{"labels": ["finance"], "priority": "high", "summary": "s"}`}
	cache := newFakeCache()
	p := NewPipeline(New(llm), cache, nil)

	ctx := context.Background()
	input := Input{Subject: "Invoice", Body: "pay up"}

	first, err := p.Classify(ctx, input)
	if err != nil {
		t.Fatalf("Classify() first call error = %v", err)
	}
	if cache.sets != 1 {
		t.Fatalf("expected cache to be populated after first call, sets = %d", cache.sets)
	}

	llm.classifyResponse = `{"labels": ["spam"], "priority": "low", "summary": "different"}`
	second, err := p.Classify(ctx, input)
	if err != nil {
		t.Fatalf("Classify() second call error = %v", err)
	}

	if second.Labels[0] != first.Labels[0] {
		t.Errorf("expected cache hit to return %v, got %v", first.Labels, second.Labels)
	}
}

func TestPipeline_Classify_StableSenderProfileShortCircuits(t *testing.T) {
	llm := &fakeLLM{classifyResponse: `{"labels": ["finance"], "priority": "high", "summary": "s"}`}
	senderStore := newFakeSenderStore()
	senderStore.profiles["billing@acme.com"] = &domain.SenderProfile{
		Sender:       "billing@acme.com",
		LastLabels:   []string{"finance"},
		LastPriority: domain.PriorityHigh,
		StableStreak: domain.StableLabelStreak,
	}
	p := NewPipeline(New(llm), nil, senderStore)

	result, err := p.Classify(context.Background(), Input{Subject: "Invoice", Body: "pay up", Sender: "billing@acme.com"})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if len(result.Labels) != 1 || result.Labels[0] != "finance" {
		t.Errorf("Labels = %v, want [finance] from sender profile", result.Labels)
	}
	if llm.gotUser != "" {
		t.Error("expected LLM not to be invoked when sender profile is stable")
	}
}

func TestPipeline_Classify_UnstableSenderProfileStillCallsLLM(t *testing.T) {
	llm := &fakeLLM{classifyResponse: `{"labels": ["finance"], "priority": "high", "summary": "s"}`}
	senderStore := newFakeSenderStore()
	senderStore.profiles["new@acme.com"] = &domain.SenderProfile{Sender: "new@acme.com", StableStreak: 1}
	p := NewPipeline(New(llm), nil, senderStore)

	_, err := p.Classify(context.Background(), Input{Subject: "Invoice", Body: "pay up", Sender: "new@acme.com"})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if llm.gotUser == "" {
		t.Error("expected LLM to be invoked when sender profile is not yet stable")
	}
}
