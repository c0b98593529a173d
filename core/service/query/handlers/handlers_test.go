package handlers

import (
	"context"
	"errors"

	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
)

// --- fakes shared across this package's tests ---

type fakeLLM struct {
	invokeReply   string
	invokeErr     error
	classifyReply string
	classifyErr   error
}

func (f *fakeLLM) Invoke(_ context.Context, _ string) (string, error) {
	return f.invokeReply, f.invokeErr
}

func (f *fakeLLM) Classify(_ context.Context, _, _ string) (string, error) {
	return f.classifyReply, f.classifyErr
}

type fakeStore struct {
	countByTopic     int
	topSenders       []out.SenderCount
	dailyStats       []out.DailyStat
	unreadCount      int
	totalCount       int
	bySender         []*domain.Message
	byAttachment     []*domain.Message
	byKeywords       []*domain.Message
	byLabel          []*domain.Message
	byLabelTotal     int
	listMessages     []*domain.Message
	similarityResult []out.ScoredMessage
	hybridResult     []out.ScoredMessage
	err              error
}

func (f *fakeStore) SaveMessage(context.Context, *domain.Message) error             { return nil }
func (f *fakeStore) SaveMessagesBatch(context.Context, []*domain.Message) error     { return nil }
func (f *fakeStore) GetMessageByID(context.Context, string) (*domain.Message, error) { return nil, nil }
func (f *fakeStore) ListMessages(_ context.Context, limit, _ int) ([]*domain.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.listMessages, nil
}
func (f *fakeStore) GetMessageIDs(context.Context) (map[string]struct{}, error) { return nil, nil }
func (f *fakeStore) CreateClassification(context.Context, string, []string, domain.Priority, string, string) (string, error) {
	return "", nil
}
func (f *fakeStore) CreateClassificationsBatch(context.Context, []out.ClassificationInput) error {
	return nil
}
func (f *fakeStore) SaveEmbedding(context.Context, string, []float32, string) error { return nil }
func (f *fakeStore) ListMessagesByLabel(_ context.Context, _ string, _, _ int) ([]*domain.Message, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.byLabel, f.byLabelTotal, nil
}
func (f *fakeStore) ListMessagesByPriority(context.Context, domain.Priority, int, int) ([]*domain.Message, int, error) {
	return nil, 0, nil
}
func (f *fakeStore) ListClassified(context.Context, int, int) ([]*domain.Message, int, error) {
	return nil, 0, nil
}
func (f *fakeStore) ListUnclassified(context.Context, int, int) ([]*domain.Message, int, error) {
	return nil, 0, nil
}
func (f *fakeStore) ListMessagesByFilters(context.Context, out.MessageFilter, int, int) ([]*domain.Message, int, error) {
	return nil, 0, nil
}
func (f *fakeStore) KeywordSearch(context.Context, string, int, float64) ([]out.ScoredMessage, error) {
	return nil, nil
}
func (f *fakeStore) SimilaritySearch(_ context.Context, _ []float32, _ int, _ float64) ([]out.ScoredMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.similarityResult, nil
}
func (f *fakeStore) HybridSearch(_ context.Context, _ []float32, _ string, _, _ int, _, _ float64) ([]out.ScoredMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hybridResult, nil
}
func (f *fakeStore) CountByTopic(context.Context, string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.countByTopic, nil
}
func (f *fakeStore) GetDailyEmailStats(context.Context, int) ([]out.DailyStat, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.dailyStats, nil
}
func (f *fakeStore) GetTopSenders(context.Context, int) ([]out.SenderCount, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.topSenders, nil
}
func (f *fakeStore) GetTotalMessageCount(context.Context) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.totalCount, nil
}
func (f *fakeStore) GetUnreadCount(context.Context) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.unreadCount, nil
}
func (f *fakeStore) SearchBySender(_ context.Context, _ string, _ int) ([]*domain.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bySender, nil
}
func (f *fakeStore) SearchByAttachment(context.Context, int) ([]*domain.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byAttachment, nil
}
func (f *fakeStore) SearchByKeywords(_ context.Context, _ []string, _ int) ([]*domain.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byKeywords, nil
}
func (f *fakeStore) GetLabelCounts(context.Context) (map[string]int, error) { return nil, nil }
func (f *fakeStore) GetHistoryID(context.Context) (string, error)          { return "", nil }
func (f *fakeStore) SetHistoryID(context.Context, string) error            { return nil }
func (f *fakeStore) CreateChatSession(context.Context, *domain.ChatSession) error { return nil }
func (f *fakeStore) GetChatSession(context.Context, string) (*domain.ChatSession, error) {
	return nil, nil
}
func (f *fakeStore) SaveMessageToChatSession(context.Context, string, *domain.ChatMessage) error {
	return nil
}
func (f *fakeStore) ListChatMessages(context.Context, string, int) ([]*domain.ChatMessage, error) {
	return nil, nil
}
func (f *fakeStore) UpdateChatSessionTitle(context.Context, string, string) error { return nil }

var errStore = errors.New("store failure")
