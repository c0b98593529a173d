package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/bbangmxn/mailintel/core/agent/embed"
	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
	"github.com/bbangmxn/mailintel/core/service/classification"
)

// --- fakes ---

type fakeMailProvider struct {
	inboxIDs    []string
	payloads    map[string]*out.MailPayload
	fetchErrors map[string]error
	cursor      string
}

func (f *fakeMailProvider) ListInboxIDs(_ context.Context) ([]string, error) {
	return f.inboxIDs, nil
}

func (f *fakeMailProvider) ListChangedIDs(_ context.Context, _ string) ([]string, string, error) {
	return nil, f.cursor, nil
}

func (f *fakeMailProvider) GetCurrentCursor(_ context.Context) (string, error) {
	return f.cursor, nil
}

func (f *fakeMailProvider) FetchMessage(_ context.Context, id string) (*out.MailPayload, error) {
	if err, ok := f.fetchErrors[id]; ok {
		return nil, err
	}
	p, ok := f.payloads[id]
	if !ok {
		return nil, fmt.Errorf("no such message %s", id)
	}
	return p, nil
}

type fakeStore struct {
	messages      map[string]*domain.Message
	unclassified  []*domain.Message
	classifyCalls []string
	embedCalls    map[string][]float32
	saveErr       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{messages: make(map[string]*domain.Message), embedCalls: make(map[string][]float32)}
}

func (f *fakeStore) SaveMessage(_ context.Context, m *domain.Message) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.messages[m.ID] = m
	return nil
}
func (f *fakeStore) SaveMessagesBatch(_ context.Context, ms []*domain.Message) error {
	for _, m := range ms {
		f.messages[m.ID] = m
	}
	return nil
}
func (f *fakeStore) GetMessageByID(_ context.Context, id string) (*domain.Message, error) {
	return f.messages[id], nil
}
func (f *fakeStore) ListMessages(_ context.Context, _, _ int) ([]*domain.Message, error) { return nil, nil }
func (f *fakeStore) GetMessageIDs(_ context.Context) (map[string]struct{}, error) {
	ids := make(map[string]struct{}, len(f.messages))
	for id := range f.messages {
		ids[id] = struct{}{}
	}
	return ids, nil
}
func (f *fakeStore) CreateClassification(_ context.Context, messageID string, _ []string, _ domain.Priority, _, _ string) (string, error) {
	f.classifyCalls = append(f.classifyCalls, messageID)
	return "classification-" + messageID, nil
}
func (f *fakeStore) CreateClassificationsBatch(_ context.Context, _ []out.ClassificationInput) error {
	return nil
}
func (f *fakeStore) SaveEmbedding(_ context.Context, messageID string, vector []float32, _ string) error {
	f.embedCalls[messageID] = vector
	return nil
}
func (f *fakeStore) ListMessagesByLabel(_ context.Context, _ string, _, _ int) ([]*domain.Message, int, error) {
	return nil, 0, nil
}
func (f *fakeStore) ListMessagesByPriority(_ context.Context, _ domain.Priority, _, _ int) ([]*domain.Message, int, error) {
	return nil, 0, nil
}
func (f *fakeStore) ListClassified(_ context.Context, _, _ int) ([]*domain.Message, int, error) {
	return nil, 0, nil
}
func (f *fakeStore) ListUnclassified(_ context.Context, limit, _ int) ([]*domain.Message, int, error) {
	total := len(f.unclassified)
	if limit > len(f.unclassified) {
		limit = len(f.unclassified)
	}
	page := f.unclassified[:limit]
	f.unclassified = f.unclassified[limit:]
	return page, total, nil
}
func (f *fakeStore) ListMessagesByFilters(_ context.Context, _ out.MessageFilter, _, _ int) ([]*domain.Message, int, error) {
	return nil, 0, nil
}
func (f *fakeStore) KeywordSearch(_ context.Context, _ string, _ int, _ float64) ([]out.ScoredMessage, error) {
	return nil, nil
}
func (f *fakeStore) SimilaritySearch(_ context.Context, _ []float32, _ int, _ float64) ([]out.ScoredMessage, error) {
	return nil, nil
}
func (f *fakeStore) HybridSearch(_ context.Context, _ []float32, _ string, _, _ int, _, _ float64) ([]out.ScoredMessage, error) {
	return nil, nil
}
func (f *fakeStore) CountByTopic(_ context.Context, _ string) (int, error) { return 0, nil }
func (f *fakeStore) GetDailyEmailStats(_ context.Context, _ int) ([]out.DailyStat, error) {
	return nil, nil
}
func (f *fakeStore) GetTopSenders(_ context.Context, _ int) ([]out.SenderCount, error) { return nil, nil }
func (f *fakeStore) GetTotalMessageCount(_ context.Context) (int, error)               { return len(f.messages), nil }
func (f *fakeStore) GetUnreadCount(_ context.Context) (int, error)                     { return 0, nil }
func (f *fakeStore) SearchBySender(_ context.Context, _ string, _ int) ([]*domain.Message, error) {
	return nil, nil
}
func (f *fakeStore) SearchByAttachment(_ context.Context, _ int) ([]*domain.Message, error) {
	return nil, nil
}
func (f *fakeStore) SearchByKeywords(_ context.Context, _ []string, _ int) ([]*domain.Message, error) {
	return nil, nil
}
func (f *fakeStore) GetLabelCounts(_ context.Context) (map[string]int, error) { return nil, nil }
func (f *fakeStore) GetHistoryID(_ context.Context) (string, error)           { return "", nil }
func (f *fakeStore) SetHistoryID(_ context.Context, _ string) error          { return nil }
func (f *fakeStore) CreateChatSession(_ context.Context, _ *domain.ChatSession) error { return nil }
func (f *fakeStore) GetChatSession(_ context.Context, _ string) (*domain.ChatSession, error) {
	return nil, nil
}
func (f *fakeStore) SaveMessageToChatSession(_ context.Context, _ string, _ *domain.ChatMessage) error {
	return nil
}
func (f *fakeStore) ListChatMessages(_ context.Context, _ string, _ int) ([]*domain.ChatMessage, error) {
	return nil, nil
}
func (f *fakeStore) UpdateChatSessionTitle(_ context.Context, _, _ string) error { return nil }

type fakeChunkStore struct {
	saved map[string][]domain.EmailChunk
}

func (f *fakeChunkStore) SaveChunks(_ context.Context, messageID string, chunks []domain.EmailChunk) error {
	if f.saved == nil {
		f.saved = make(map[string][]domain.EmailChunk)
	}
	f.saved[messageID] = chunks
	return nil
}
func (f *fakeChunkStore) GetChunks(_ context.Context, messageID string) ([]domain.EmailChunk, error) {
	return f.saved[messageID], nil
}
func (f *fakeChunkStore) DeleteChunks(_ context.Context, messageID string) error {
	delete(f.saved, messageID)
	return nil
}

type fakeLLM struct{ response string }

func (f *fakeLLM) Invoke(_ context.Context, _ string) (string, error) { return f.response, nil }
func (f *fakeLLM) Classify(_ context.Context, _, _ string) (string, error) {
	return f.response, nil
}

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) EmbedText(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, f.dim), nil
}
func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = make([]float32, f.dim)
	}
	return vectors, nil
}

func testPipeline(response string) *classification.Pipeline {
	return classification.NewPipeline(classification.New(&fakeLLM{response: response}), nil, nil)
}

// --- tests ---

func TestController_StartPull_SingleFlight(t *testing.T) {
	mail := &fakeMailProvider{inboxIDs: []string{}}
	store := newFakeStore()
	c := New(mail, store, nil, testPipeline(""), embed.New(&fakeEmbedder{dim: domain.EmbeddingDim}), "rules", "rules", 10)

	if !c.StartPull(context.Background()) {
		t.Fatal("expected first StartPull to return true")
	}
	if c.StartPull(context.Background()) {
		t.Error("expected second immediate StartPull to return false")
	}
}

func TestController_Pull_NoCredentialsFails(t *testing.T) {
	store := newFakeStore()
	c := New(nil, store, nil, testPipeline(""), embed.New(&fakeEmbedder{dim: domain.EmbeddingDim}), "rules", "rules", 10)

	c.runPull(context.Background())

	p := c.PullProgress()
	if p.Status != StatusError {
		t.Fatalf("Status = %q, want error", p.Status)
	}
	if p.ErrorMessage == "" {
		t.Error("expected a non-empty error message")
	}
}

func TestController_Pull_SavesNewMessagesAndDetectsAttachment(t *testing.T) {
	payload := &out.MailPayload{
		ID: "m1",
		Headers: []out.MailHeader{
			{Name: "Subject", Value: "Hello"},
			{Name: "From", Value: "Alice <alice@example.com>"},
		},
		Payload: out.MailPart{
			MimeType: "multipart/mixed",
			Parts: []out.MailPart{
				{MimeType: "text/plain", Data: "aGVsbG8"},
				{MimeType: "application/pdf", Filename: "doc.pdf"},
			},
		},
		Snippet: "hello",
	}
	mail := &fakeMailProvider{inboxIDs: []string{"m1"}, payloads: map[string]*out.MailPayload{"m1": payload}}
	store := newFakeStore()
	c := New(mail, store, nil, testPipeline(""), embed.New(&fakeEmbedder{dim: domain.EmbeddingDim}), "rules", "rules", 10)

	c.runPull(context.Background())

	p := c.PullProgress()
	if p.Status != StatusCompleted {
		t.Fatalf("Status = %q, want completed", p.Status)
	}
	if p.Processed != 1 || p.Errors != 0 {
		t.Errorf("Processed=%d Errors=%d, want 1/0", p.Processed, p.Errors)
	}

	msg, ok := store.messages["m1"]
	if !ok {
		t.Fatal("expected message m1 to be saved")
	}
	if msg.Sender != "alice@example.com" {
		t.Errorf("Sender = %q, want alice@example.com", msg.Sender)
	}
	if !msg.HasAttach {
		t.Error("expected HasAttach = true")
	}
}

func TestController_Pull_SkipsAlreadyKnownIDs(t *testing.T) {
	mail := &fakeMailProvider{inboxIDs: []string{"m1"}, payloads: map[string]*out.MailPayload{}}
	store := newFakeStore()
	store.messages["m1"] = &domain.Message{ID: "m1"}
	c := New(mail, store, nil, testPipeline(""), embed.New(&fakeEmbedder{dim: domain.EmbeddingDim}), "rules", "rules", 10)

	c.runPull(context.Background())

	p := c.PullProgress()
	if p.Status != StatusCompleted || p.Total != 0 {
		t.Errorf("Progress = %+v, want completed with Total=0", p)
	}
}

func TestController_Pull_CountsErrorsAfterFetchFailure(t *testing.T) {
	mail := &fakeMailProvider{
		inboxIDs:    []string{"m1", "m2"},
		payloads:    map[string]*out.MailPayload{"m2": {ID: "m2", Payload: out.MailPart{MimeType: "text/plain"}}},
		fetchErrors: map[string]error{"m1": fmt.Errorf("boom")},
	}
	store := newFakeStore()
	c := New(mail, store, nil, testPipeline(""), embed.New(&fakeEmbedder{dim: domain.EmbeddingDim}), "rules", "rules", 10)

	c.runPull(context.Background())

	p := c.PullProgress()
	if p.Errors != 1 || p.Processed != 1 {
		t.Errorf("Errors=%d Processed=%d, want 1/1", p.Errors, p.Processed)
	}
}

func TestController_Classify_ClassifiesAndEmbedsEachMessage(t *testing.T) {
	store := newFakeStore()
	store.unclassified = []*domain.Message{
		{ID: "m1", Subject: "Invoice", Snippet: "pay up", Sender: "billing@acme.com"},
		{ID: "m2", Subject: "Newsletter", Snippet: "news", Sender: "no-reply@news.com"},
	}
	c := New(nil, store, nil, testPipeline(`{"labels": ["finance"], "priority": "high", "summary": "s"}`), embed.New(&fakeEmbedder{dim: domain.EmbeddingDim}), "rules", "rules", 10)

	c.runClassify(context.Background())

	p := c.ClassifyProgress()
	if p.Status != StatusCompleted {
		t.Fatalf("Status = %q, want completed", p.Status)
	}
	if p.Processed != 2 || p.Errors != 0 {
		t.Errorf("Processed=%d Errors=%d, want 2/0", p.Processed, p.Errors)
	}
	if len(store.classifyCalls) != 2 {
		t.Errorf("expected 2 CreateClassification calls, got %d", len(store.classifyCalls))
	}
	if len(store.embedCalls) != 2 {
		t.Errorf("expected 2 SaveEmbedding calls, got %d", len(store.embedCalls))
	}
}

func TestController_Classify_RoutesToChunksWhenTextExceedsBudget(t *testing.T) {
	longBody := ""
	for i := 0; i < 2000; i++ {
		longBody += "word "
	}
	store := newFakeStore()
	store.unclassified = []*domain.Message{{ID: "m1", Subject: "Long", Snippet: longBody}}
	chunks := &fakeChunkStore{}
	c := New(nil, store, chunks, testPipeline(`{"labels": [], "priority": "normal", "summary": "s"}`), embed.New(&fakeEmbedder{dim: domain.EmbeddingDim}), "rules", "rules", 10)

	c.runClassify(context.Background())

	p := c.ClassifyProgress()
	if p.Errors != 0 {
		t.Fatalf("Errors = %d, want 0", p.Errors)
	}
	if len(chunks.saved["m1"]) == 0 {
		t.Error("expected chunks to be saved for a message exceeding the token budget")
	}
	if _, ok := store.embedCalls["m1"]; ok {
		t.Error("expected no single-vector embedding for a chunked message")
	}
}

func TestExtractPlainTextBody_PrefersPlainTextPart(t *testing.T) {
	part := out.MailPart{
		MimeType: "multipart/alternative",
		Parts: []out.MailPart{
			{MimeType: "text/html", Data: "PGI+aGk8L2I+"},
			{MimeType: "text/plain", Data: "aGVsbG8gd29ybGQ"},
		},
	}
	payload, _ := json.Marshal(part)
	msg := &domain.Message{Payload: payload, Snippet: "fallback"}

	body := extractPlainTextBody(msg)
	if body != "hello world" {
		t.Errorf("body = %q, want %q", body, "hello world")
	}
}

func TestExtractPlainTextBody_FallsBackToSnippet(t *testing.T) {
	msg := &domain.Message{Snippet: "fallback text"}
	if body := extractPlainTextBody(msg); body != "fallback text" {
		t.Errorf("body = %q, want fallback", body)
	}
}

func TestDecodeBase64URL_PaddingCorrection(t *testing.T) {
	// "hi" base64url-encodes to "aGk" with no padding (len 3, needs 1 '=').
	decoded, err := decodeBase64URL("aGk")
	if err != nil {
		t.Fatalf("decodeBase64URL() error = %v", err)
	}
	if decoded != "hi" {
		t.Errorf("decoded = %q, want hi", decoded)
	}
}

func TestParseEmailAddress(t *testing.T) {
	cases := map[string]string{
		"Alice <alice@example.com>": "alice@example.com",
		"bob@example.com":           "bob@example.com",
		"  carol@example.com  ":     "carol@example.com",
	}
	for raw, want := range cases {
		if got := parseEmailAddress(raw); got != want {
			t.Errorf("parseEmailAddress(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestHasAttachment(t *testing.T) {
	withFilename := out.MailPart{Parts: []out.MailPart{{Filename: "a.pdf"}}}
	if !hasAttachment(&withFilename) {
		t.Error("expected attachment detected via filename")
	}

	withDisposition := out.MailPart{Parts: []out.MailPart{{Disposition: "attachment; filename=a.pdf"}}}
	if !hasAttachment(&withDisposition) {
		t.Error("expected attachment detected via Content-Disposition")
	}

	plain := out.MailPart{MimeType: "text/plain"}
	if hasAttachment(&plain) {
		t.Error("expected no attachment detected for a plain body")
	}
}
