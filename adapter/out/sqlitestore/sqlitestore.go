// Package sqlitestore is the SQLite-backed implementation of
// out.MessageStore and out.ChunkStore, for STORAGE_BACKEND=sqlite: a
// single-file store with no separate server process, grounded on the
// original organize-mail project's SQLiteStorage schema (messages,
// classifications, metadata tables), generalized with the chunk, chat
// session, and sync-cursor tables the rest of this package's MessageStore
// contract requires. Connection handling (modernc.org/sqlite, pragma DSN,
// single-writer pool) is grounded on pkg/sqliteutil's OpenDB.
//
// SQLite has no pgvector equivalent, so SimilaritySearch, KeywordSearch,
// and HybridSearch load candidate rows and score them in Go via
// pkg/vectormath rather than pushing the ranking into SQL.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
	"github.com/bbangmxn/mailintel/pkg/apperr"
	"github.com/bbangmxn/mailintel/pkg/vectormath"
)

const rrfK = 60

// DefaultPath returns ~/.mailintel.db, the fallback when STORAGE_DB_PATH
// is unset.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".mailintel.db")
}

// Open creates (if needed) and connects to the SQLite database at path,
// applying the schema and the pragmas OpenDB in the example pack uses for
// concurrent access from a single process: WAL journaling, a busy
// timeout, and foreign keys enabled.
func Open(path string) (*sqlx.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, apperr.Configuration("create sqlite directory: " + err.Error())
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, apperr.TransientExternal("open sqlite database", err)
	}
	// SQLite serializes writes at the file level; one connection avoids
	// "database is locked" errors under concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func applySchema(db *sqlx.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		thread_id TEXT,
		sender TEXT,
		recipient TEXT,
		subject TEXT,
		snippet TEXT,
		labels TEXT,
		internal_ts INTEGER,
		headers TEXT,
		has_attach INTEGER,
		ingested_at TEXT,
		latest_classification_id TEXT,
		embedding TEXT,
		embedding_model TEXT,
		embedded_at TEXT
	);
	CREATE TABLE IF NOT EXISTS classifications (
		id TEXT PRIMARY KEY,
		message_id TEXT NOT NULL,
		labels TEXT,
		priority TEXT,
		summary TEXT,
		model TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_classifications_message_id ON classifications(message_id);
	CREATE TABLE IF NOT EXISTS email_chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		embedding TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_message_id ON email_chunks(message_id);
	CREATE TABLE IF NOT EXISTS sync_state (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		title TEXT,
		created_at TEXT,
		updated_at TEXT
	);
	CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		chat_session_id TEXT NOT NULL,
		role TEXT,
		content TEXT,
		sources TEXT,
		confidence TEXT,
		query_type TEXT,
		created_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(chat_session_id);`

	if _, err := db.Exec(schema); err != nil {
		return apperr.Configuration("apply sqlite schema: " + err.Error())
	}
	return nil
}

// Store is the SQLite-backed MessageStore/ChunkStore.
type Store struct {
	db *sqlx.DB
}

// New wraps an already-open sqlx.DB (see Open).
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

var (
	_ out.MessageStore = (*Store)(nil)
	_ out.ChunkStore   = (*Store)(nil)
)

func encodeFloats(v []float32) (string, error) {
	if len(v) == 0 {
		return "", nil
	}
	b, err := json.Marshal(v)
	return string(b), err
}

func decodeFloats(s string) ([]float32, error) {
	if s == "" {
		return nil, nil
	}
	var v []float32
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

type messageRow struct {
	ID                     string         `db:"id"`
	ThreadID               string         `db:"thread_id"`
	Sender                 string         `db:"sender"`
	Recipient              string         `db:"recipient"`
	Subject                string         `db:"subject"`
	Snippet                string         `db:"snippet"`
	Labels                 string         `db:"labels"`
	InternalTS             int64          `db:"internal_ts"`
	Headers                string         `db:"headers"`
	HasAttach              bool           `db:"has_attach"`
	IngestedAt             time.Time      `db:"ingested_at"`
	LatestClassificationID string         `db:"latest_classification_id"`
	Embedding              string         `db:"embedding"`
	EmbeddingModel         string         `db:"embedding_model"`
	EmbeddedAt             sql.NullTime   `db:"embedded_at"`
}

func (r messageRow) toDomain() (*domain.Message, error) {
	m := &domain.Message{
		ID: r.ID, ThreadID: r.ThreadID, Sender: r.Sender, Recipient: r.Recipient,
		Subject: r.Subject, Snippet: r.Snippet, InternalTS: r.InternalTS,
		HasAttach: r.HasAttach, IngestedAt: r.IngestedAt,
		LatestClassificationID: r.LatestClassificationID, EmbeddingModel: r.EmbeddingModel,
	}
	if r.Labels != "" {
		if err := json.Unmarshal([]byte(r.Labels), &m.Labels); err != nil {
			return nil, fmt.Errorf("decode labels: %w", err)
		}
	}
	if r.Headers != "" {
		if err := json.Unmarshal([]byte(r.Headers), &m.Headers); err != nil {
			return nil, fmt.Errorf("decode headers: %w", err)
		}
	}
	embedding, err := decodeFloats(r.Embedding)
	if err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	m.Embedding = embedding
	if r.EmbeddedAt.Valid {
		m.EmbeddedAt = &r.EmbeddedAt.Time
	}
	return m, nil
}

const messageSelectColumns = `
	id, thread_id, sender, recipient, subject, snippet, labels, internal_ts,
	headers, has_attach, ingested_at, latest_classification_id,
	embedding, embedding_model, embedded_at`

func (s *Store) SaveMessage(ctx context.Context, m *domain.Message) error {
	labels, err := json.Marshal(m.Labels)
	if err != nil {
		return apperr.InvalidInput("marshal labels: " + err.Error())
	}
	headers, err := json.Marshal(m.Headers)
	if err != nil {
		return apperr.InvalidInput("marshal headers: " + err.Error())
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (
			id, thread_id, sender, recipient, subject, snippet, labels, internal_ts,
			headers, has_attach, ingested_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			thread_id = excluded.thread_id,
			labels = excluded.labels,
			has_attach = excluded.has_attach,
			headers = excluded.headers`,
		m.ID, m.ThreadID, m.Sender, m.Recipient, m.Subject, m.Snippet, string(labels), m.InternalTS,
		string(headers), m.HasAttach, m.IngestedAt,
	)
	if err != nil {
		return apperr.TransientExternal("save message", err)
	}
	return nil
}

func (s *Store) SaveMessagesBatch(ctx context.Context, ms []*domain.Message) error {
	for _, m := range ms {
		if err := s.SaveMessage(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetMessageByID(ctx context.Context, id string) (*domain.Message, error) {
	var row messageRow
	query := fmt.Sprintf(`SELECT %s FROM messages WHERE id = ?`, messageSelectColumns)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("message not found: " + id)
		}
		return nil, apperr.TransientExternal("get message", err)
	}
	return row.toDomain()
}

func collectMessages(rows []messageRow) ([]*domain.Message, error) {
	msgs := make([]*domain.Message, 0, len(rows))
	for _, r := range rows {
		m, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *Store) ListMessages(ctx context.Context, limit, offset int) ([]*domain.Message, error) {
	var rows []messageRow
	query := fmt.Sprintf(`SELECT %s FROM messages ORDER BY internal_ts DESC LIMIT ? OFFSET ?`, messageSelectColumns)
	if err := s.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, apperr.TransientExternal("list messages", err)
	}
	return collectMessages(rows)
}

func (s *Store) GetMessageIDs(ctx context.Context) (map[string]struct{}, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, `SELECT id FROM messages`); err != nil {
		return nil, apperr.TransientExternal("list message ids", err)
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (s *Store) CreateClassification(ctx context.Context, messageID string, labels []string, priority domain.Priority, summary, model string) (string, error) {
	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return "", apperr.InvalidInput("marshal labels: " + err.Error())
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", apperr.TransientExternal("begin classification tx", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO classifications (id, message_id, labels, priority, summary, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, messageID, string(labelsJSON), string(priority), summary, model, time.Now(),
	); err != nil {
		return "", apperr.TransientExternal("insert classification", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE messages SET latest_classification_id = ? WHERE id = ?`, id, messageID); err != nil {
		return "", apperr.Integrity("update latest classification pointer", err)
	}
	if err := tx.Commit(); err != nil {
		return "", apperr.TransientExternal("commit classification tx", err)
	}
	return id, nil
}

func (s *Store) CreateClassificationsBatch(ctx context.Context, inputs []out.ClassificationInput) error {
	if len(inputs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.TransientExternal("begin batch classification tx", err)
	}
	defer tx.Rollback()

	for _, in := range inputs {
		labelsJSON, err := json.Marshal(in.Labels)
		if err != nil {
			return apperr.InvalidInput("marshal labels: " + err.Error())
		}
		id := uuid.NewString()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO classifications (id, message_id, labels, priority, summary, model, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, in.MessageID, string(labelsJSON), string(in.Priority), in.Summary, in.Model, time.Now(),
		); err != nil {
			return apperr.TransientExternal("insert batch classification", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE messages SET latest_classification_id = ? WHERE id = ?`, id, in.MessageID); err != nil {
			return apperr.Integrity("update latest classification pointer", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.TransientExternal("commit batch classification tx", err)
	}
	return nil
}

func (s *Store) SaveEmbedding(ctx context.Context, messageID string, vector []float32, model string) error {
	encoded, err := encodeFloats(vector)
	if err != nil {
		return apperr.InvalidInput("marshal embedding: " + err.Error())
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE messages SET embedding = ?, embedding_model = ?, embedded_at = ? WHERE id = ?`,
		encoded, model, time.Now(), messageID)
	if err != nil {
		return apperr.TransientExternal("save embedding", err)
	}
	return nil
}

func (s *Store) ListMessagesByLabel(ctx context.Context, label string, limit, offset int) ([]*domain.Message, int, error) {
	query := fmt.Sprintf(`
		SELECT m.id, m.thread_id, m.sender, m.recipient, m.subject, m.snippet, m.labels, m.internal_ts,
			m.headers, m.has_attach, m.ingested_at, m.latest_classification_id,
			m.embedding, m.embedding_model, m.embedded_at
		FROM messages m
		JOIN classifications c ON c.id = m.latest_classification_id
		WHERE c.labels LIKE '%%' || ? || '%%'
		ORDER BY m.internal_ts DESC`)
	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, `"`+label+`"`); err != nil {
		return nil, 0, apperr.TransientExternal("list messages by label", err)
	}
	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return paginateAndCount(msgs, limit, offset)
}

func (s *Store) ListMessagesByPriority(ctx context.Context, priority domain.Priority, limit, offset int) ([]*domain.Message, int, error) {
	query := fmt.Sprintf(`
		SELECT m.id, m.thread_id, m.sender, m.recipient, m.subject, m.snippet, m.labels, m.internal_ts,
			m.headers, m.has_attach, m.ingested_at, m.latest_classification_id,
			m.embedding, m.embedding_model, m.embedded_at
		FROM messages m
		JOIN classifications c ON c.id = m.latest_classification_id
		WHERE c.priority = ?
		ORDER BY m.internal_ts DESC`)
	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, string(priority)); err != nil {
		return nil, 0, apperr.TransientExternal("list messages by priority", err)
	}
	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return paginateAndCount(msgs, limit, offset)
}

func (s *Store) ListClassified(ctx context.Context, limit, offset int) ([]*domain.Message, int, error) {
	return s.listByClassifiedState(ctx, true, limit, offset)
}

func (s *Store) ListUnclassified(ctx context.Context, limit, offset int) ([]*domain.Message, int, error) {
	return s.listByClassifiedState(ctx, false, limit, offset)
}

func (s *Store) listByClassifiedState(ctx context.Context, classified bool, limit, offset int) ([]*domain.Message, int, error) {
	cond := "latest_classification_id IS NULL OR latest_classification_id = ''"
	if classified {
		cond = "latest_classification_id IS NOT NULL AND latest_classification_id != ''"
	}
	query := fmt.Sprintf(`SELECT %s FROM messages WHERE %s ORDER BY internal_ts DESC`, messageSelectColumns, cond)
	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, 0, apperr.TransientExternal("list messages by classification state", err)
	}
	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return paginateAndCount(msgs, limit, offset)
}

func (s *Store) ListMessagesByFilters(ctx context.Context, f out.MessageFilter, limit, offset int) ([]*domain.Message, int, error) {
	conds := []string{"1=1"}
	args := []any{}
	joinClassification := false

	if f.Priority != nil {
		joinClassification = true
		conds = append(conds, "c.priority = ?")
		args = append(args, string(*f.Priority))
	}
	for _, label := range f.Labels {
		joinClassification = true
		conds = append(conds, "c.labels LIKE '%' || ? || '%'")
		args = append(args, `"`+label+`"`)
	}
	if f.Classified != nil {
		if *f.Classified {
			conds = append(conds, "m.latest_classification_id IS NOT NULL AND m.latest_classification_id != ''")
		} else {
			conds = append(conds, "(m.latest_classification_id IS NULL OR m.latest_classification_id = '')")
		}
	}

	join := ""
	if joinClassification {
		join = "JOIN classifications c ON c.id = m.latest_classification_id"
	}
	query := fmt.Sprintf(`
		SELECT m.id, m.thread_id, m.sender, m.recipient, m.subject, m.snippet, m.labels, m.internal_ts,
			m.headers, m.has_attach, m.ingested_at, m.latest_classification_id,
			m.embedding, m.embedding_model, m.embedded_at
		FROM messages m %s
		WHERE %s
		ORDER BY m.internal_ts DESC`, join, strings.Join(conds, " AND "))

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, apperr.TransientExternal("list messages by filters", err)
	}
	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return paginateAndCount(msgs, limit, offset)
}

func paginateAndCount(msgs []*domain.Message, limit, offset int) ([]*domain.Message, int, error) {
	total := len(msgs)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total || limit <= 0 {
		end = total
	}
	return msgs[offset:end], total, nil
}

func (s *Store) KeywordSearch(ctx context.Context, query string, limit int, threshold float64) ([]out.ScoredMessage, error) {
	rows, err := s.allMessageRows(ctx)
	if err != nil {
		return nil, err
	}
	var scored []out.ScoredMessage
	for _, r := range rows {
		m, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		rank := vectormath.KeywordRank(m.Subject+" "+m.Snippet, query)
		if rank <= 0 || rank < threshold {
			continue
		}
		scored = append(scored, out.ScoredMessage{Message: m, Score: rank})
	}
	sortScoredDesc(scored)
	return capScored(scored, limit), nil
}

func (s *Store) SimilaritySearch(ctx context.Context, vector []float32, limit int, threshold float64) ([]out.ScoredMessage, error) {
	rows, err := s.allMessageRows(ctx)
	if err != nil {
		return nil, err
	}

	best := make(map[string]float64)
	byID := make(map[string]*domain.Message)
	for _, r := range rows {
		m, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		byID[m.ID] = m
		if len(m.Embedding) > 0 {
			best[m.ID] = vectormath.CosineSimilarity(vector, m.Embedding)
		}
	}

	var chunkRows []struct {
		MessageID string `db:"message_id"`
		Embedding string `db:"embedding"`
	}
	if err := s.db.SelectContext(ctx, &chunkRows, `SELECT message_id, embedding FROM email_chunks`); err != nil {
		return nil, apperr.TransientExternal("load chunk embeddings", err)
	}
	for _, c := range chunkRows {
		vec, err := decodeFloats(c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("decode chunk embedding: %w", err)
		}
		sim := vectormath.CosineSimilarity(vector, vec)
		if sim > best[c.MessageID] {
			best[c.MessageID] = sim
		}
	}

	var scored []out.ScoredMessage
	for id, sim := range best {
		if sim < threshold {
			continue
		}
		if m, ok := byID[id]; ok {
			scored = append(scored, out.ScoredMessage{Message: m, Score: sim})
		}
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

func (s *Store) allMessageRows(ctx context.Context) ([]messageRow, error) {
	var rows []messageRow
	query := fmt.Sprintf(`SELECT %s FROM messages`, messageSelectColumns)
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, apperr.TransientExternal("load messages", err)
	}
	return rows, nil
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
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM messages
		WHERE subject LIKE '%' || ? || '%' OR snippet LIKE '%' || ? || '%'`, topic, topic)
	if err != nil {
		return 0, apperr.TransientExternal("count by topic", err)
	}
	return n, nil
}

func (s *Store) GetDailyEmailStats(ctx context.Context, days int) ([]out.DailyStat, error) {
	var stats []out.DailyStat
	err := s.db.SelectContext(ctx, &stats, `
		SELECT date(internal_ts / 1000, 'unixepoch') AS date, COUNT(*) AS count
		FROM messages
		WHERE internal_ts >= (strftime('%s', 'now', ? || ' days') * 1000)
		GROUP BY date
		ORDER BY date DESC`, fmt.Sprintf("-%d", days))
	if err != nil {
		return nil, apperr.TransientExternal("daily email stats", err)
	}
	return stats, nil
}

func (s *Store) GetTopSenders(ctx context.Context, limit int) ([]out.SenderCount, error) {
	var senders []out.SenderCount
	err := s.db.SelectContext(ctx, &senders, `
		SELECT sender, COUNT(*) AS count FROM messages
		GROUP BY sender ORDER BY count DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperr.TransientExternal("top senders", err)
	}
	return senders, nil
}

func (s *Store) GetTotalMessageCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM messages`); err != nil {
		return 0, apperr.TransientExternal("total message count", err)
	}
	return n, nil
}

func (s *Store) GetUnreadCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM messages WHERE labels LIKE '%"UNREAD"%'`); err != nil {
		return 0, apperr.TransientExternal("unread count", err)
	}
	return n, nil
}

func (s *Store) SearchBySender(ctx context.Context, sender string, limit int) ([]*domain.Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM messages WHERE sender LIKE '%%' || ? || '%%' ORDER BY internal_ts DESC LIMIT ?`, messageSelectColumns)
	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, sender, limit); err != nil {
		return nil, apperr.TransientExternal("search by sender", err)
	}
	return collectMessages(rows)
}

func (s *Store) SearchByAttachment(ctx context.Context, limit int) ([]*domain.Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM messages WHERE has_attach = 1 ORDER BY internal_ts DESC LIMIT ?`, messageSelectColumns)
	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, apperr.TransientExternal("search by attachment", err)
	}
	return collectMessages(rows)
}

func (s *Store) SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]*domain.Message, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	conds := make([]string, 0, len(keywords))
	args := make([]any, 0, len(keywords)*2+1)
	for _, kw := range keywords {
		conds = append(conds, "(subject LIKE '%' || ? || '%' OR snippet LIKE '%' || ? || '%')")
		args = append(args, kw, kw)
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT %s FROM messages WHERE %s ORDER BY internal_ts DESC LIMIT ?`,
		messageSelectColumns, strings.Join(conds, " OR "))

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperr.TransientExternal("search by keywords", err)
	}
	return collectMessages(rows)
}

func (s *Store) GetLabelCounts(ctx context.Context) (map[string]int, error) {
	var classLabels []string
	if err := s.db.SelectContext(ctx, &classLabels, `SELECT labels FROM classifications`); err != nil {
		return nil, apperr.TransientExternal("label counts", err)
	}
	counts := make(map[string]int)
	for _, raw := range classLabels {
		var labels []string
		if raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(raw), &labels); err != nil {
			continue
		}
		for _, l := range labels {
			counts[l]++
		}
	}
	return counts, nil
}

func (s *Store) GetHistoryID(ctx context.Context) (string, error) {
	var v string
	err := s.db.GetContext(ctx, &v, `SELECT value FROM sync_state WHERE key = 'history_id'`)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", apperr.TransientExternal("get history id", err)
	}
	return v, nil
}

func (s *Store) SetHistoryID(ctx context.Context, v string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (key, value) VALUES ('history_id', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, v)
	if err != nil {
		return apperr.TransientExternal("set history id", err)
	}
	return nil
}

func (s *Store) CreateChatSession(ctx context.Context, cs *domain.ChatSession) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		cs.ID, cs.Title, now, now)
	if err != nil {
		return apperr.TransientExternal("create chat session", err)
	}
	return nil
}

func (s *Store) GetChatSession(ctx context.Context, id string) (*domain.ChatSession, error) {
	var row struct {
		ID        string    `db:"id"`
		Title     string    `db:"title"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	err := s.db.GetContext(ctx, &row, `SELECT id, title, created_at, updated_at FROM chat_sessions WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("chat session not found: " + id)
	}
	if err != nil {
		return nil, apperr.TransientExternal("get chat session", err)
	}
	return &domain.ChatSession{ID: row.ID, Title: row.Title, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt}, nil
}

func (s *Store) SaveMessageToChatSession(ctx context.Context, sessionID string, m *domain.ChatMessage) error {
	sourcesJSON, err := json.Marshal(m.Sources)
	if err != nil {
		return apperr.InvalidInput("marshal sources: " + err.Error())
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.TransientExternal("begin chat message tx", err)
	}
	defer tx.Rollback()

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chat_messages (id, chat_session_id, role, content, sources, confidence, query_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, sessionID, string(m.Role), m.Content, string(sourcesJSON), string(m.Confidence), string(m.QueryType), now,
	); err != nil {
		return apperr.TransientExternal("save chat message", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = ? WHERE id = ?`, now, sessionID); err != nil {
		return apperr.TransientExternal("touch chat session", err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.TransientExternal("commit chat message tx", err)
	}
	return nil
}

func (s *Store) ListChatMessages(ctx context.Context, sessionID string, limit int) ([]*domain.ChatMessage, error) {
	var rows []struct {
		ID            string    `db:"id"`
		ChatSessionID string    `db:"chat_session_id"`
		Role          string    `db:"role"`
		Content       string    `db:"content"`
		Sources       string    `db:"sources"`
		Confidence    string    `db:"confidence"`
		QueryType     string    `db:"query_type"`
		CreatedAt     time.Time `db:"created_at"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, chat_session_id, role, content, sources, confidence, query_type, created_at
		FROM chat_messages
		WHERE chat_session_id = ?
		ORDER BY created_at ASC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, apperr.TransientExternal("list chat messages", err)
	}

	msgs := make([]*domain.ChatMessage, 0, len(rows))
	for _, r := range rows {
		m := &domain.ChatMessage{
			ID: r.ID, ChatSessionID: r.ChatSessionID, Role: domain.ChatRole(r.Role),
			Content: r.Content, Confidence: domain.Confidence(r.Confidence),
			QueryType: domain.QueryKind(r.QueryType), CreatedAt: r.CreatedAt,
		}
		if r.Sources != "" {
			if err := json.Unmarshal([]byte(r.Sources), &m.Sources); err != nil {
				return nil, fmt.Errorf("decode sources: %w", err)
			}
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *Store) UpdateChatSessionTitle(ctx context.Context, sessionID, title string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE chat_sessions SET title = ?, updated_at = ? WHERE id = ?`, title, time.Now(), sessionID)
	if err != nil {
		return apperr.TransientExternal("update chat session title", err)
	}
	return nil
}

// ChunkStore methods.

func (s *Store) SaveChunks(ctx context.Context, messageID string, chunks []domain.EmailChunk) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.TransientExternal("begin save chunks tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM email_chunks WHERE message_id = ?`, messageID); err != nil {
		return apperr.TransientExternal("clear existing chunks", err)
	}
	for _, c := range chunks {
		encoded, err := encodeFloats(c.Embedding)
		if err != nil {
			return apperr.InvalidInput("marshal chunk embedding: " + err.Error())
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO email_chunks (message_id, chunk_index, text, embedding)
			VALUES (?, ?, ?, ?)`,
			messageID, c.Index, c.Text, encoded,
		); err != nil {
			return apperr.TransientExternal("insert chunk", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.TransientExternal("commit save chunks tx", err)
	}
	return nil
}

func (s *Store) GetChunks(ctx context.Context, messageID string) ([]domain.EmailChunk, error) {
	var rows []struct {
		ID         int64  `db:"id"`
		MessageID  string `db:"message_id"`
		ChunkIndex int    `db:"chunk_index"`
		Text       string `db:"text"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, message_id, chunk_index, text
		FROM email_chunks
		WHERE message_id = ?
		ORDER BY chunk_index ASC`, messageID)
	if err != nil {
		return nil, apperr.TransientExternal("get chunks", err)
	}
	chunks := make([]domain.EmailChunk, len(rows))
	for i, r := range rows {
		chunks[i] = domain.EmailChunk{ID: r.ID, MessageID: r.MessageID, Index: r.ChunkIndex, Text: r.Text}
	}
	return chunks, nil
}

func (s *Store) DeleteChunks(ctx context.Context, messageID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM email_chunks WHERE message_id = ?`, messageID); err != nil {
		return apperr.TransientExternal("delete chunks", err)
	}
	return nil
}
