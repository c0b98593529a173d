// Package memstore is an in-process, map-backed implementation of
// out.MessageStore and out.ChunkStore, grounded on the original
// organize-mail project's InMemoryStorage: state lives only in memory and
// is lost when the process exits, which makes it a fit for STORAGE_BACKEND
// =memory (tests, local development) and a poor fit for anything else.
// Neither a vector index nor a full-text engine backs it, so
// SimilaritySearch, KeywordSearch, and HybridSearch fall back to the
// brute-force scoring in pkg/vectormath.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
	"github.com/bbangmxn/mailintel/pkg/apperr"
	"github.com/bbangmxn/mailintel/pkg/vectormath"
)

const rrfK = 60

type classificationRecord struct {
	id        string
	labels    []string
	priority  domain.Priority
	summary   string
	model     string
	createdAt time.Time
}

// Store is the in-memory backend. All state is guarded by one mutex; this
// is a development/test aid, not a store sized for concurrent throughput.
type Store struct {
	mu sync.RWMutex

	messages        map[string]*domain.Message
	classifications map[string][]classificationRecord // message id -> history, oldest first
	chunks          map[string][]domain.EmailChunk
	chatSessions    map[string]*domain.ChatSession
	chatMessages    map[string][]*domain.ChatMessage
	historyID       string
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		messages:        make(map[string]*domain.Message),
		classifications: make(map[string][]classificationRecord),
		chunks:          make(map[string][]domain.EmailChunk),
		chatSessions:    make(map[string]*domain.ChatSession),
		chatMessages:    make(map[string][]*domain.ChatMessage),
	}
}

var (
	_ out.MessageStore = (*Store)(nil)
	_ out.ChunkStore   = (*Store)(nil)
)

func clone(m *domain.Message) *domain.Message {
	cp := *m
	cp.Labels = append([]string(nil), m.Labels...)
	cp.Embedding = append([]float32(nil), m.Embedding...)
	if m.Headers != nil {
		cp.Headers = make(map[string]string, len(m.Headers))
		for k, v := range m.Headers {
			cp.Headers[k] = v
		}
	}
	return &cp
}

func (s *Store) SaveMessage(ctx context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.ID] = clone(m)
	return nil
}

func (s *Store) SaveMessagesBatch(ctx context.Context, ms []*domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range ms {
		s.messages[m.ID] = clone(m)
	}
	return nil
}

func (s *Store) GetMessageByID(ctx context.Context, id string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, apperr.NotFound("message not found: " + id)
	}
	return clone(m), nil
}

func (s *Store) allSortedByRecency() []*domain.Message {
	all := make([]*domain.Message, 0, len(s.messages))
	for _, m := range s.messages {
		all = append(all, m)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].InternalTS > all[j].InternalTS })
	return all
}

func paginate(all []*domain.Message, limit, offset int) []*domain.Message {
	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if end > len(all) || limit <= 0 {
		end = len(all)
	}
	out := make([]*domain.Message, 0, end-offset)
	for _, m := range all[offset:end] {
		out = append(out, clone(m))
	}
	return out
}

func (s *Store) ListMessages(ctx context.Context, limit, offset int) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paginate(s.allSortedByRecency(), limit, offset), nil
}

func (s *Store) GetMessageIDs(ctx context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make(map[string]struct{}, len(s.messages))
	for id := range s.messages {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (s *Store) CreateClassification(ctx context.Context, messageID string, labels []string, priority domain.Priority, summary, model string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[messageID]; !ok {
		return "", apperr.NotFound("message not found: " + messageID)
	}
	id := uuid.NewString()
	s.classifications[messageID] = append(s.classifications[messageID], classificationRecord{
		id: id, labels: labels, priority: priority, summary: summary, model: model, createdAt: time.Now(),
	})
	s.messages[messageID].LatestClassificationID = id
	return id, nil
}

func (s *Store) CreateClassificationsBatch(ctx context.Context, inputs []out.ClassificationInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range inputs {
		if _, ok := s.messages[in.MessageID]; !ok {
			return apperr.NotFound("message not found: " + in.MessageID)
		}
		id := uuid.NewString()
		s.classifications[in.MessageID] = append(s.classifications[in.MessageID], classificationRecord{
			id: id, labels: in.Labels, priority: in.Priority, summary: in.Summary, model: in.Model, createdAt: time.Now(),
		})
		s.messages[in.MessageID].LatestClassificationID = id
	}
	return nil
}

func (s *Store) latestClassification(messageID string) (classificationRecord, bool) {
	hist := s.classifications[messageID]
	if len(hist) == 0 {
		return classificationRecord{}, false
	}
	return hist[len(hist)-1], true
}

func (s *Store) SaveEmbedding(ctx context.Context, messageID string, vector []float32, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return apperr.NotFound("message not found: " + messageID)
	}
	now := time.Now()
	m.Embedding = vector
	m.EmbeddingModel = model
	m.EmbeddedAt = &now
	return nil
}

func (s *Store) ListMessagesByLabel(ctx context.Context, label string, limit, offset int) ([]*domain.Message, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*domain.Message
	for _, m := range s.allSortedByRecency() {
		c, ok := s.latestClassification(m.ID)
		if !ok {
			continue
		}
		for _, l := range c.labels {
			if l == label {
				matched = append(matched, m)
				break
			}
		}
	}
	return paginate(matched, limit, offset), len(matched), nil
}

func (s *Store) ListMessagesByPriority(ctx context.Context, priority domain.Priority, limit, offset int) ([]*domain.Message, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*domain.Message
	for _, m := range s.allSortedByRecency() {
		if c, ok := s.latestClassification(m.ID); ok && c.priority == priority {
			matched = append(matched, m)
		}
	}
	return paginate(matched, limit, offset), len(matched), nil
}

func (s *Store) ListClassified(ctx context.Context, limit, offset int) ([]*domain.Message, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*domain.Message
	for _, m := range s.allSortedByRecency() {
		if m.LatestClassificationID != "" {
			matched = append(matched, m)
		}
	}
	return paginate(matched, limit, offset), len(matched), nil
}

func (s *Store) ListUnclassified(ctx context.Context, limit, offset int) ([]*domain.Message, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*domain.Message
	for _, m := range s.allSortedByRecency() {
		if m.LatestClassificationID == "" {
			matched = append(matched, m)
		}
	}
	return paginate(matched, limit, offset), len(matched), nil
}

func (s *Store) ListMessagesByFilters(ctx context.Context, f out.MessageFilter, limit, offset int) ([]*domain.Message, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*domain.Message
	for _, m := range s.allSortedByRecency() {
		c, hasClassification := s.latestClassification(m.ID)

		if f.Classified != nil {
			if *f.Classified != (m.LatestClassificationID != "") {
				continue
			}
		}
		if f.Priority != nil {
			if !hasClassification || c.priority != *f.Priority {
				continue
			}
		}
		if len(f.Labels) > 0 {
			if !hasClassification || !containsAll(c.labels, f.Labels) {
				continue
			}
		}
		matched = append(matched, m)
	}
	return paginate(matched, limit, offset), len(matched), nil
}

func containsAll(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

func (s *Store) KeywordSearch(ctx context.Context, query string, limit int, threshold float64) ([]out.ScoredMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var scored []out.ScoredMessage
	for _, m := range s.messages {
		rank := vectormath.KeywordRank(m.Subject+" "+m.Snippet, query)
		if rank <= 0 || rank < threshold {
			continue
		}
		scored = append(scored, out.ScoredMessage{Message: clone(m), Score: rank})
	}
	sortScoredDesc(scored)
	return capScored(scored, limit), nil
}

func (s *Store) SimilaritySearch(ctx context.Context, vector []float32, limit int, threshold float64) ([]out.ScoredMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	best := make(map[string]float64)
	for id, m := range s.messages {
		if len(m.Embedding) > 0 {
			best[id] = vectormath.CosineSimilarity(vector, m.Embedding)
		}
	}
	for id, chunks := range s.chunks {
		for _, c := range chunks {
			sim := vectormath.CosineSimilarity(vector, c.Embedding)
			if sim > best[id] {
				best[id] = sim
			}
		}
	}

	var scored []out.ScoredMessage
	for id, sim := range best {
		if sim < threshold {
			continue
		}
		m, ok := s.messages[id]
		if !ok {
			continue
		}
		scored = append(scored, out.ScoredMessage{Message: clone(m), Score: sim})
	}
	sortScoredDesc(scored)
	return capScored(scored, limit), nil
}

// HybridSearch fuses vector and keyword rankings with reciprocal rank
// fusion, mirroring the Postgres-backed MessageStore's HybridSearch.
func (s *Store) HybridSearch(ctx context.Context, vector []float32, query string, limit, retrievalK int, wVec, wKW float64) ([]out.ScoredMessage, error) {
	vecHits, err := s.SimilaritySearch(ctx, vector, retrievalK, 0)
	if err != nil {
		return nil, err
	}
	kwHits, err := s.KeywordSearch(ctx, query, retrievalK, 0)
	if err != nil {
		return nil, err
	}

	fused := make(map[string]float64)
	byID := make(map[string]*domain.Message)
	for i, h := range vecHits {
		fused[h.Message.ID] += wVec / float64(rrfK+i+1)
		byID[h.Message.ID] = h.Message
	}
	for i, h := range kwHits {
		fused[h.Message.ID] += wKW / float64(rrfK+i+1)
		byID[h.Message.ID] = h.Message
	}

	results := make([]out.ScoredMessage, 0, len(fused))
	for id, score := range fused {
		results = append(results, out.ScoredMessage{Message: byID[id], Score: score})
	}
	sortScoredDesc(results)
	return capScored(results, limit), nil
}

func sortScoredDesc(s []out.ScoredMessage) {
	sort.Slice(s, func(i, j int) bool { return s[i].Score > s[j].Score })
}

func capScored(s []out.ScoredMessage, limit int) []out.ScoredMessage {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}

func (s *Store) CountByTopic(ctx context.Context, topic string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	topic = strings.ToLower(topic)
	n := 0
	for _, m := range s.messages {
		if strings.Contains(strings.ToLower(m.Subject), topic) || strings.Contains(strings.ToLower(m.Snippet), topic) {
			n++
		}
	}
	return n, nil
}

func (s *Store) GetDailyEmailStats(ctx context.Context, days int) ([]out.DailyStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().AddDate(0, 0, -days)
	counts := make(map[string]int)
	for _, m := range s.messages {
		t := time.UnixMilli(m.InternalTS).UTC()
		if t.Before(cutoff) {
			continue
		}
		counts[t.Format("2006-01-02")]++
	}

	stats := make([]out.DailyStat, 0, len(counts))
	for date, count := range counts {
		stats = append(stats, out.DailyStat{Date: date, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Date > stats[j].Date })
	return stats, nil
}

func (s *Store) GetTopSenders(ctx context.Context, limit int) ([]out.SenderCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, m := range s.messages {
		counts[m.Sender]++
	}
	senders := make([]out.SenderCount, 0, len(counts))
	for sender, count := range counts {
		senders = append(senders, out.SenderCount{Sender: sender, Count: count})
	}
	sort.Slice(senders, func(i, j int) bool { return senders[i].Count > senders[j].Count })
	if limit > 0 && len(senders) > limit {
		senders = senders[:limit]
	}
	return senders, nil
}

func (s *Store) GetTotalMessageCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages), nil
}

func (s *Store) GetUnreadCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.messages {
		for _, l := range m.Labels {
			if l == "UNREAD" {
				n++
				break
			}
		}
	}
	return n, nil
}

func (s *Store) SearchBySender(ctx context.Context, sender string, limit int) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sender = strings.ToLower(sender)
	var matched []*domain.Message
	for _, m := range s.allSortedByRecency() {
		if strings.Contains(strings.ToLower(m.Sender), sender) {
			matched = append(matched, m)
		}
	}
	return paginate(matched, limit, 0), nil
}

func (s *Store) SearchByAttachment(ctx context.Context, limit int) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*domain.Message
	for _, m := range s.allSortedByRecency() {
		if m.HasAttach {
			matched = append(matched, m)
		}
	}
	return paginate(matched, limit, 0), nil
}

func (s *Store) SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]*domain.Message, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}

	var matched []*domain.Message
	for _, m := range s.allSortedByRecency() {
		haystack := strings.ToLower(m.Subject + " " + m.Snippet)
		for _, kw := range lowered {
			if strings.Contains(haystack, kw) {
				matched = append(matched, m)
				break
			}
		}
	}
	return paginate(matched, limit, 0), nil
}

func (s *Store) GetLabelCounts(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for id := range s.messages {
		c, ok := s.latestClassification(id)
		if !ok {
			continue
		}
		for _, l := range c.labels {
			counts[l]++
		}
	}
	return counts, nil
}

func (s *Store) GetHistoryID(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.historyID, nil
}

func (s *Store) SetHistoryID(ctx context.Context, v string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historyID = v
	return nil
}

func (s *Store) CreateChatSession(ctx context.Context, cs *domain.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	cs.CreatedAt, cs.UpdatedAt = now, now
	copyCS := *cs
	s.chatSessions[cs.ID] = &copyCS
	return nil
}

func (s *Store) GetChatSession(ctx context.Context, id string) (*domain.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.chatSessions[id]
	if !ok {
		return nil, apperr.NotFound("chat session not found: " + id)
	}
	copyCS := *cs
	return &copyCS, nil
}

func (s *Store) SaveMessageToChatSession(ctx context.Context, sessionID string, m *domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.chatSessions[sessionID]
	if !ok {
		return apperr.NotFound("chat session not found: " + sessionID)
	}
	m.CreatedAt = time.Now()
	copyM := *m
	s.chatMessages[sessionID] = append(s.chatMessages[sessionID], &copyM)
	cs.UpdatedAt = m.CreatedAt
	return nil
}

func (s *Store) ListChatMessages(ctx context.Context, sessionID string, limit int) ([]*domain.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.chatMessages[sessionID]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	msgs := make([]*domain.ChatMessage, len(all))
	for i, m := range all {
		cp := *m
		msgs[i] = &cp
	}
	return msgs, nil
}

func (s *Store) UpdateChatSessionTitle(ctx context.Context, sessionID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.chatSessions[sessionID]
	if !ok {
		return apperr.NotFound("chat session not found: " + sessionID)
	}
	cs.Title = title
	cs.UpdatedAt = time.Now()
	return nil
}

// ChunkStore methods, sharing Store's state so a message's chunks and its
// row are cleared/read together.

func (s *Store) SaveChunks(ctx context.Context, messageID string, chunks []domain.EmailChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[messageID] = append([]domain.EmailChunk(nil), chunks...)
	return nil
}

func (s *Store) GetChunks(ctx context.Context, messageID string) ([]domain.EmailChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.EmailChunk(nil), s.chunks[messageID]...), nil
}

func (s *Store) DeleteChunks(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, messageID)
	return nil
}
