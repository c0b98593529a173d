// Package out defines outbound ports: interfaces the core consumes from
// external collaborators (storage, the mail provider, messaging).
package out

import (
	"context"

	"github.com/bbangmxn/mailintel/core/domain"
)

// ScoredMessage pairs a message with a relevance score (similarity, rank
// fusion score, or keyword rank, depending on the call site).
type ScoredMessage struct {
	Message *domain.Message
	Score   float64
}

// MessageFilter is the combined predicate list_messages_by_filters accepts.
type MessageFilter struct {
	Priority   *domain.Priority
	Labels     []string // AND semantics
	Classified *bool
}

// MessageStore is the storage contract for messages, classifications, and
// the aggregate/search queries the query handlers consume.
type MessageStore interface {
	SaveMessage(ctx context.Context, m *domain.Message) error
	SaveMessagesBatch(ctx context.Context, ms []*domain.Message) error
	GetMessageByID(ctx context.Context, id string) (*domain.Message, error)
	ListMessages(ctx context.Context, limit, offset int) ([]*domain.Message, error)
	GetMessageIDs(ctx context.Context) (map[string]struct{}, error)

	// CreateClassification inserts a Classification row and atomically
	// updates the owning Message's latest_classification_id pointer.
	CreateClassification(ctx context.Context, messageID string, labels []string, priority domain.Priority, summary, model string) (string, error)
	CreateClassificationsBatch(ctx context.Context, inputs []ClassificationInput) error

	// SaveEmbedding writes a message-level embedding. Exclusive to the
	// Embedder; mutually exclusive
	// with SaveChunks for the same message.
	SaveEmbedding(ctx context.Context, messageID string, vector []float32, model string) error

	ListMessagesByLabel(ctx context.Context, label string, limit, offset int) ([]*domain.Message, int, error)
	ListMessagesByPriority(ctx context.Context, priority domain.Priority, limit, offset int) ([]*domain.Message, int, error)
	ListClassified(ctx context.Context, limit, offset int) ([]*domain.Message, int, error)
	ListUnclassified(ctx context.Context, limit, offset int) ([]*domain.Message, int, error)
	ListMessagesByFilters(ctx context.Context, f MessageFilter, limit, offset int) ([]*domain.Message, int, error)

	KeywordSearch(ctx context.Context, query string, limit int, threshold float64) ([]ScoredMessage, error)
	SimilaritySearch(ctx context.Context, vector []float32, limit int, threshold float64) ([]ScoredMessage, error)
	HybridSearch(ctx context.Context, vector []float32, query string, limit, retrievalK int, wVec, wKW float64) ([]ScoredMessage, error)

	CountByTopic(ctx context.Context, topic string) (int, error)
	GetDailyEmailStats(ctx context.Context, days int) ([]DailyStat, error)
	GetTopSenders(ctx context.Context, limit int) ([]SenderCount, error)
	GetTotalMessageCount(ctx context.Context) (int, error)
	GetUnreadCount(ctx context.Context) (int, error)
	SearchBySender(ctx context.Context, sender string, limit int) ([]*domain.Message, error)
	SearchByAttachment(ctx context.Context, limit int) ([]*domain.Message, error)
	SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]*domain.Message, error)
	GetLabelCounts(ctx context.Context) (map[string]int, error)

	GetHistoryID(ctx context.Context) (string, error)
	SetHistoryID(ctx context.Context, v string) error

	CreateChatSession(ctx context.Context, s *domain.ChatSession) error
	GetChatSession(ctx context.Context, id string) (*domain.ChatSession, error)
	SaveMessageToChatSession(ctx context.Context, sessionID string, m *domain.ChatMessage) error
	ListChatMessages(ctx context.Context, sessionID string, limit int) ([]*domain.ChatMessage, error)

	// UpdateChatSessionTitle sets a session's title, used by the RAG
	// Engine's background title-generation task.
	UpdateChatSessionTitle(ctx context.Context, sessionID, title string) error
}

// ClassificationInput is one item of a batch classification write.
type ClassificationInput struct {
	MessageID string
	Labels    []string
	Priority  domain.Priority
	Summary   string
	Model     string
}

// DailyStat is one day's message count, used by get_daily_email_stats.
type DailyStat struct {
	Date  string
	Count int
}

// SenderCount pairs a sender address with their message count.
type SenderCount struct {
	Sender string
	Count  int
}

// ChunkStore is the storage contract for the chunk table backing chunked
// embeddings (mutually exclusive with a message-level embedding).
type ChunkStore interface {
	SaveChunks(ctx context.Context, messageID string, chunks []domain.EmailChunk) error
	GetChunks(ctx context.Context, messageID string) ([]domain.EmailChunk, error)
	DeleteChunks(ctx context.Context, messageID string) error
}
