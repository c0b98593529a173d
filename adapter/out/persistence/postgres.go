// Package persistence provides database adapters implementing outbound ports.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
	"github.com/bbangmxn/mailintel/pkg/apperr"
)

// PostgresConfig holds connection-pool tuning, mirrored from the
// database bootstrap defaults.
type PostgresConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// DefaultPostgresConfig returns the pool defaults used when none are given.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxConns:          25,
		MinConns:          5,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
	}
}

// NewPostgresPool opens and pings a pgx pool against databaseURL.
func NewPostgresPool(databaseURL string, cfg *PostgresConfig) (*pgxpool.Pool, error) {
	if cfg == nil {
		cfg = DefaultPostgresConfig()
	}

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, apperr.Configuration("parse postgres dsn: " + err.Error())
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, apperr.TransientExternal("open postgres pool", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		return nil, apperr.TransientExternal("ping postgres", err)
	}
	return pool, nil
}

// MessageStore is the pgvector-backed implementation of out.MessageStore.
// Vector search is fundamental to the interface (SimilaritySearch,
// HybridSearch), so it is built directly on pgxpool rather than sqlx, the
// same choice made for pgvector-backed adapters elsewhere. The
// opaque MIME payload and raw body are large, rarely-queried blobs kept out
// of Postgres entirely and delegated to payloads, mirroring the
// split between its relational mail row and its Mongo-backed body cache.
type MessageStore struct {
	db        *pgxpool.Pool
	payloads  out.PayloadStore
	analytics *AnalyticsReader
}

// NewMessageStore creates a MessageStore. payloads may be nil, in which
// case Payload/RawBody are left unset on reads and writes. analytics may
// be nil, in which case the aggregate queries run against db directly
// instead of the sqlx pool.
func NewMessageStore(db *pgxpool.Pool, payloads out.PayloadStore, analytics *AnalyticsReader) *MessageStore {
	return &MessageStore{db: db, payloads: payloads, analytics: analytics}
}

var _ out.MessageStore = (*MessageStore)(nil)

const messageSelectColumns = `
	id, thread_id, sender, recipient, subject, snippet, labels, internal_ts,
	headers, has_attach, ingested_at, latest_classification_id,
	embedding_model, embedded_at`

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var m domain.Message
	var headersRaw []byte
	var embeddedAt *time.Time
	if err := row.Scan(
		&m.ID, &m.ThreadID, &m.Sender, &m.Recipient, &m.Subject, &m.Snippet,
		&m.Labels, &m.InternalTS, &headersRaw,
		&m.HasAttach, &m.IngestedAt, &m.LatestClassificationID,
		&m.EmbeddingModel, &embeddedAt,
	); err != nil {
		return nil, err
	}
	if len(headersRaw) > 0 {
		if err := json.Unmarshal(headersRaw, &m.Headers); err != nil {
			return nil, fmt.Errorf("decode headers: %w", err)
		}
	}
	m.EmbeddedAt = embeddedAt
	return &m, nil
}

func (s *MessageStore) SaveMessage(ctx context.Context, m *domain.Message) error {
	headers, err := json.Marshal(m.Headers)
	if err != nil {
		return apperr.InvalidInput("marshal headers: " + err.Error())
	}

	query := `
		INSERT INTO messages (
			id, thread_id, sender, recipient, subject, snippet, labels, internal_ts,
			headers, has_attach, ingested_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			thread_id = EXCLUDED.thread_id,
			labels = EXCLUDED.labels,
			has_attach = EXCLUDED.has_attach,
			headers = EXCLUDED.headers`

	if _, err := s.db.Exec(ctx, query,
		m.ID, m.ThreadID, m.Sender, m.Recipient, m.Subject, m.Snippet, m.Labels, m.InternalTS,
		headers, m.HasAttach, m.IngestedAt,
	); err != nil {
		return apperr.TransientExternal("save message", err)
	}

	if s.payloads != nil {
		if err := s.payloads.SavePayload(ctx, m.ID, m.Payload, m.RawBody); err != nil {
			return apperr.TransientExternal("save message payload", err)
		}
	}
	return nil
}

func (s *MessageStore) SaveMessagesBatch(ctx context.Context, ms []*domain.Message) error {
	if len(ms) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range ms {
		headers, err := json.Marshal(m.Headers)
		if err != nil {
			return apperr.InvalidInput("marshal headers: " + err.Error())
		}
		batch.Queue(`
			INSERT INTO messages (
				id, thread_id, sender, recipient, subject, snippet, labels, internal_ts,
				headers, has_attach, ingested_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				thread_id = EXCLUDED.thread_id,
				labels = EXCLUDED.labels,
				has_attach = EXCLUDED.has_attach,
				headers = EXCLUDED.headers`,
			m.ID, m.ThreadID, m.Sender, m.Recipient, m.Subject, m.Snippet, m.Labels, m.InternalTS,
			headers, m.HasAttach, m.IngestedAt)
	}

	br := s.db.SendBatch(ctx, batch)
	for range ms {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return apperr.TransientExternal("save messages batch", err)
		}
	}
	if err := br.Close(); err != nil {
		return apperr.TransientExternal("close messages batch", err)
	}

	if s.payloads != nil {
		for _, m := range ms {
			if err := s.payloads.SavePayload(ctx, m.ID, m.Payload, m.RawBody); err != nil {
				return apperr.TransientExternal("save message payload", err)
			}
		}
	}
	return nil
}

func (s *MessageStore) GetMessageByID(ctx context.Context, id string) (*domain.Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM messages WHERE id = $1`, messageSelectColumns)
	m, err := scanMessage(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("message not found: " + id)
		}
		return nil, apperr.TransientExternal("get message", err)
	}

	if s.payloads != nil {
		payload, rawBody, err := s.payloads.GetPayload(ctx, id)
		if err != nil {
			return nil, apperr.TransientExternal("get message payload", err)
		}
		m.Payload, m.RawBody = payload, rawBody
	}
	return m, nil
}

func (s *MessageStore) ListMessages(ctx context.Context, limit, offset int) ([]*domain.Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM messages ORDER BY internal_ts DESC LIMIT $1 OFFSET $2`, messageSelectColumns)
	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, apperr.TransientExternal("list messages", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *MessageStore) GetMessageIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM messages`)
	if err != nil {
		return nil, apperr.TransientExternal("list message ids", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

func (s *MessageStore) CreateClassification(ctx context.Context, messageID string, labels []string, priority domain.Priority, summary, model string) (string, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", apperr.TransientExternal("begin classification tx", err)
	}
	defer tx.Rollback(ctx)

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO classifications (message_id, labels, priority, summary, model, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id`,
		messageID, labels, string(priority), summary, model,
	).Scan(&id)
	if err != nil {
		return "", apperr.TransientExternal("insert classification", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE messages SET latest_classification_id = $1 WHERE id = $2`, id, messageID); err != nil {
		return "", apperr.Integrity("update latest classification pointer", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", apperr.TransientExternal("commit classification tx", err)
	}
	return id, nil
}

func (s *MessageStore) CreateClassificationsBatch(ctx context.Context, inputs []out.ClassificationInput) error {
	if len(inputs) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return apperr.TransientExternal("begin batch classification tx", err)
	}
	defer tx.Rollback(ctx)

	for _, in := range inputs {
		var id string
		if err := tx.QueryRow(ctx, `
			INSERT INTO classifications (message_id, labels, priority, summary, model, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			RETURNING id`,
			in.MessageID, in.Labels, string(in.Priority), in.Summary, in.Model,
		).Scan(&id); err != nil {
			return apperr.TransientExternal("insert batch classification", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE messages SET latest_classification_id = $1 WHERE id = $2`, id, in.MessageID); err != nil {
			return apperr.Integrity("update latest classification pointer", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.TransientExternal("commit batch classification tx", err)
	}
	return nil
}

func (s *MessageStore) SaveEmbedding(ctx context.Context, messageID string, vector []float32, model string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE messages SET embedding = $1, embedding_model = $2, embedded_at = NOW() WHERE id = $3`,
		pgVector(vector), model, messageID)
	if err != nil {
		return apperr.TransientExternal("save embedding", err)
	}
	return nil
}

func (s *MessageStore) ListMessagesByLabel(ctx context.Context, label string, limit, offset int) ([]*domain.Message, int, error) {
	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) OVER() AS total_count
		FROM messages m
		JOIN classifications c ON c.id = m.latest_classification_id
		WHERE $1 = ANY(c.labels)
		ORDER BY m.internal_ts DESC
		LIMIT $2 OFFSET $3`, qualify("m", messageSelectColumns))
	return s.listMessagesWithCount(ctx, query, label, limit, offset)
}

func (s *MessageStore) ListMessagesByPriority(ctx context.Context, priority domain.Priority, limit, offset int) ([]*domain.Message, int, error) {
	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) OVER() AS total_count
		FROM messages m
		JOIN classifications c ON c.id = m.latest_classification_id
		WHERE c.priority = $1
		ORDER BY m.internal_ts DESC
		LIMIT $2 OFFSET $3`, qualify("m", messageSelectColumns))
	return s.listMessagesWithCount(ctx, query, string(priority), limit, offset)
}

func (s *MessageStore) ListClassified(ctx context.Context, limit, offset int) ([]*domain.Message, int, error) {
	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) OVER() AS total_count
		FROM messages m
		WHERE m.latest_classification_id IS NOT NULL AND m.latest_classification_id != ''
		ORDER BY m.internal_ts DESC
		LIMIT $1 OFFSET $2`, qualify("m", messageSelectColumns))
	return s.listMessagesWithCountNoFilter(ctx, query, limit, offset)
}

func (s *MessageStore) ListUnclassified(ctx context.Context, limit, offset int) ([]*domain.Message, int, error) {
	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) OVER() AS total_count
		FROM messages m
		WHERE m.latest_classification_id IS NULL OR m.latest_classification_id = ''
		ORDER BY m.internal_ts DESC
		LIMIT $1 OFFSET $2`, qualify("m", messageSelectColumns))
	return s.listMessagesWithCountNoFilter(ctx, query, limit, offset)
}

func (s *MessageStore) ListMessagesByFilters(ctx context.Context, f out.MessageFilter, limit, offset int) ([]*domain.Message, int, error) {
	conds := []string{"1=1"}
	args := []any{}
	joinClassification := false

	if f.Priority != nil {
		joinClassification = true
		args = append(args, string(*f.Priority))
		conds = append(conds, fmt.Sprintf("c.priority = $%d", len(args)))
	}
	if len(f.Labels) > 0 {
		joinClassification = true
		for _, l := range f.Labels {
			args = append(args, l)
			conds = append(conds, fmt.Sprintf("$%d = ANY(c.labels)", len(args)))
		}
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

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) OVER() AS total_count
		FROM messages m
		%s
		WHERE %s
		ORDER BY m.internal_ts DESC
		LIMIT $%d OFFSET $%d`,
		qualify("m", messageSelectColumns), join, strings.Join(conds, " AND "), len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperr.TransientExternal("list messages by filters", err)
	}
	defer rows.Close()
	return scanMessagesWithCount(rows)
}

func (s *MessageStore) listMessagesWithCount(ctx context.Context, query string, filterArg any, limit, offset int) ([]*domain.Message, int, error) {
	rows, err := s.db.Query(ctx, query, filterArg, limit, offset)
	if err != nil {
		return nil, 0, apperr.TransientExternal("list messages", err)
	}
	defer rows.Close()
	return scanMessagesWithCount(rows)
}

func (s *MessageStore) listMessagesWithCountNoFilter(ctx context.Context, query string, limit, offset int) ([]*domain.Message, int, error) {
	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, apperr.TransientExternal("list messages", err)
	}
	defer rows.Close()
	return scanMessagesWithCount(rows)
}

func scanMessagesWithCount(rows pgx.Rows) ([]*domain.Message, int, error) {
	var msgs []*domain.Message
	total := 0
	for rows.Next() {
		var m domain.Message
		var headersRaw []byte
		var embeddedAt *time.Time
		if err := rows.Scan(
			&m.ID, &m.ThreadID, &m.Sender, &m.Recipient, &m.Subject, &m.Snippet,
			&m.Labels, &m.InternalTS, &headersRaw,
			&m.HasAttach, &m.IngestedAt, &m.LatestClassificationID,
			&m.EmbeddingModel, &embeddedAt, &total,
		); err != nil {
			return nil, 0, err
		}
		if len(headersRaw) > 0 {
			if err := json.Unmarshal(headersRaw, &m.Headers); err != nil {
				return nil, 0, fmt.Errorf("decode headers: %w", err)
			}
		}
		m.EmbeddedAt = embeddedAt
		msgs = append(msgs, &m)
	}
	return msgs, total, rows.Err()
}

func collectMessages(rows pgx.Rows) ([]*domain.Message, error) {
	var msgs []*domain.Message
	for rows.Next() {
		var m domain.Message
		var headersRaw []byte
		var embeddedAt *time.Time
		if err := rows.Scan(
			&m.ID, &m.ThreadID, &m.Sender, &m.Recipient, &m.Subject, &m.Snippet,
			&m.Labels, &m.InternalTS, &headersRaw,
			&m.HasAttach, &m.IngestedAt, &m.LatestClassificationID,
			&m.EmbeddingModel, &embeddedAt,
		); err != nil {
			return nil, err
		}
		if len(headersRaw) > 0 {
			if err := json.Unmarshal(headersRaw, &m.Headers); err != nil {
				return nil, fmt.Errorf("decode headers: %w", err)
			}
		}
		m.EmbeddedAt = embeddedAt
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// qualify prefixes a bare column list with a table alias, since
// messageSelectColumns is shared between unaliased and joined queries.
func qualify(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func (s *MessageStore) KeywordSearch(ctx context.Context, query string, limit int, threshold float64) ([]out.ScoredMessage, error) {
	tsQuery := buildTsQuery(query)
	if tsQuery == "" {
		return nil, nil
	}

	sqlQuery := fmt.Sprintf(`
		SELECT %s,
			ts_rank_cd(to_tsvector('english', subject || ' ' || snippet), to_tsquery('english', $1)) AS rank
		FROM messages
		WHERE to_tsvector('english', subject || ' ' || snippet) @@ to_tsquery('english', $1)
		ORDER BY rank DESC
		LIMIT $2`, messageSelectColumns)

	rows, err := s.db.Query(ctx, sqlQuery, tsQuery, limit)
	if err != nil {
		return nil, apperr.TransientExternal("keyword search", err)
	}
	defer rows.Close()
	return scanScoredMessages(rows, threshold)
}

// SimilaritySearch unions the two places an embedding can live: a message's
// own single-vector embedding, and its chunks' embeddings when it was too
// long to embed whole (see ChunkStore). A message's score is the max
// similarity over either source, so a long email embedded only as chunks is
// just as retrievable as a short one embedded directly.
func (s *MessageStore) SimilaritySearch(ctx context.Context, vector []float32, limit int, threshold float64) ([]out.ScoredMessage, error) {
	sqlQuery := fmt.Sprintf(`
		WITH candidates AS (
			SELECT id AS message_id, 1 - (embedding <=> $1) AS similarity
			FROM messages
			WHERE embedding IS NOT NULL
			UNION ALL
			SELECT message_id, MAX(1 - (embedding <=> $1)) AS similarity
			FROM email_chunks
			GROUP BY message_id
		),
		best AS (
			SELECT message_id, MAX(similarity) AS similarity
			FROM candidates
			GROUP BY message_id
		)
		SELECT %s, best.similarity
		FROM messages m
		JOIN best ON best.message_id = m.id
		ORDER BY best.similarity DESC
		LIMIT $2`, qualify("m", messageSelectColumns))

	rows, err := s.db.Query(ctx, sqlQuery, pgVector(vector), limit)
	if err != nil {
		return nil, apperr.TransientExternal("similarity search", err)
	}
	defer rows.Close()
	return scanScoredMessages(rows, threshold)
}

// HybridSearch fuses vector and keyword rankings with reciprocal rank
// fusion: w/(k+rank) per list (w is wVec for the vector list, wKW for the
// keyword list), summed per message, re-sorted descending.
func (s *MessageStore) HybridSearch(ctx context.Context, vector []float32, query string, limit, retrievalK int, wVec, wKW float64) ([]out.ScoredMessage, error) {
	const rrfK = 60

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
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func sortScoredDesc(s []out.ScoredMessage) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].Score > s[j-1].Score; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func scanScoredMessages(rows pgx.Rows, threshold float64) ([]out.ScoredMessage, error) {
	var results []out.ScoredMessage
	for rows.Next() {
		var m domain.Message
		var headersRaw []byte
		var embeddedAt *time.Time
		var score float64
		if err := rows.Scan(
			&m.ID, &m.ThreadID, &m.Sender, &m.Recipient, &m.Subject, &m.Snippet,
			&m.Labels, &m.InternalTS, &headersRaw,
			&m.HasAttach, &m.IngestedAt, &m.LatestClassificationID,
			&m.EmbeddingModel, &embeddedAt, &score,
		); err != nil {
			return nil, err
		}
		if score < threshold {
			continue
		}
		if len(headersRaw) > 0 {
			if err := json.Unmarshal(headersRaw, &m.Headers); err != nil {
				return nil, fmt.Errorf("decode headers: %w", err)
			}
		}
		m.EmbeddedAt = embeddedAt
		results = append(results, out.ScoredMessage{Message: &m, Score: score})
	}
	return results, rows.Err()
}

// buildTsQuery turns free text into an AND-joined to_tsquery expression,
// stripping characters tsquery would otherwise choke on.
func buildTsQuery(q string) string {
	fields := strings.Fields(q)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
				return r
			}
			return -1
		}, f)
		if f != "" {
			terms = append(terms, f+":*")
		}
	}
	return strings.Join(terms, " & ")
}

func (s *MessageStore) CountByTopic(ctx context.Context, topic string) (int, error) {
	if s.analytics != nil {
		return s.analytics.CountByTopic(ctx, topic)
	}
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE subject ILIKE '%' || $1 || '%' OR snippet ILIKE '%' || $1 || '%'`, topic).Scan(&count)
	if err != nil {
		return 0, apperr.TransientExternal("count by topic", err)
	}
	return count, nil
}

func (s *MessageStore) GetDailyEmailStats(ctx context.Context, days int) ([]out.DailyStat, error) {
	if s.analytics != nil {
		return s.analytics.GetDailyEmailStats(ctx, days)
	}
	rows, err := s.db.Query(ctx, `
		SELECT to_char(to_timestamp(internal_ts / 1000.0), 'YYYY-MM-DD') AS day, COUNT(*)
		FROM messages
		WHERE to_timestamp(internal_ts / 1000.0) >= NOW() - ($1 || ' days')::interval
		GROUP BY day
		ORDER BY day DESC`, days)
	if err != nil {
		return nil, apperr.TransientExternal("daily email stats", err)
	}
	defer rows.Close()

	var stats []out.DailyStat
	for rows.Next() {
		var d out.DailyStat
		if err := rows.Scan(&d.Date, &d.Count); err != nil {
			return nil, err
		}
		stats = append(stats, d)
	}
	return stats, rows.Err()
}

func (s *MessageStore) GetTopSenders(ctx context.Context, limit int) ([]out.SenderCount, error) {
	if s.analytics != nil {
		return s.analytics.GetTopSenders(ctx, limit)
	}
	rows, err := s.db.Query(ctx, `
		SELECT sender, COUNT(*) AS cnt FROM messages
		GROUP BY sender ORDER BY cnt DESC LIMIT $1`, limit)
	if err != nil {
		return nil, apperr.TransientExternal("top senders", err)
	}
	defer rows.Close()

	var senderCounts []out.SenderCount
	for rows.Next() {
		var sc out.SenderCount
		if err := rows.Scan(&sc.Sender, &sc.Count); err != nil {
			return nil, err
		}
		senderCounts = append(senderCounts, sc)
	}
	return senderCounts, rows.Err()
}

func (s *MessageStore) GetTotalMessageCount(ctx context.Context) (int, error) {
	if s.analytics != nil {
		return s.analytics.GetTotalMessageCount(ctx)
	}
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, apperr.TransientExternal("total message count", err)
	}
	return n, nil
}

func (s *MessageStore) GetUnreadCount(ctx context.Context) (int, error) {
	if s.analytics != nil {
		return s.analytics.GetUnreadCount(ctx)
	}
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE 'UNREAD' = ANY(labels)`).Scan(&n); err != nil {
		return 0, apperr.TransientExternal("unread count", err)
	}
	return n, nil
}

func (s *MessageStore) SearchBySender(ctx context.Context, sender string, limit int) ([]*domain.Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM messages WHERE sender ILIKE '%%' || $1 || '%%' ORDER BY internal_ts DESC LIMIT $2`, messageSelectColumns)
	rows, err := s.db.Query(ctx, query, sender, limit)
	if err != nil {
		return nil, apperr.TransientExternal("search by sender", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *MessageStore) SearchByAttachment(ctx context.Context, limit int) ([]*domain.Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM messages WHERE has_attach = TRUE ORDER BY internal_ts DESC LIMIT $1`, messageSelectColumns)
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, apperr.TransientExternal("search by attachment", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *MessageStore) SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]*domain.Message, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	conds := make([]string, 0, len(keywords))
	args := make([]any, 0, len(keywords)+1)
	for _, kw := range keywords {
		args = append(args, kw)
		conds = append(conds, fmt.Sprintf("(subject ILIKE '%%' || $%d || '%%' OR snippet ILIKE '%%' || $%d || '%%')", len(args), len(args)))
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT %s FROM messages WHERE %s ORDER BY internal_ts DESC LIMIT $%d`,
		messageSelectColumns, strings.Join(conds, " OR "), len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.TransientExternal("search by keywords", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *MessageStore) GetLabelCounts(ctx context.Context) (map[string]int, error) {
	if s.analytics != nil {
		return s.analytics.GetLabelCounts(ctx)
	}
	rows, err := s.db.Query(ctx, `
		SELECT unnest(c.labels) AS label, COUNT(*)
		FROM classifications c
		GROUP BY label`)
	if err != nil {
		return nil, apperr.TransientExternal("label counts", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		counts[label] = n
	}
	return counts, rows.Err()
}

func (s *MessageStore) GetHistoryID(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRow(ctx, `SELECT value FROM sync_state WHERE key = 'history_id'`).Scan(&v)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", apperr.TransientExternal("get history id", err)
	}
	return v, nil
}

func (s *MessageStore) SetHistoryID(ctx context.Context, v string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sync_state (key, value) VALUES ('history_id', $1)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, v)
	if err != nil {
		return apperr.TransientExternal("set history id", err)
	}
	return nil
}

func (s *MessageStore) CreateChatSession(ctx context.Context, cs *domain.ChatSession) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO chat_sessions (id, title, created_at, updated_at) VALUES ($1, $2, NOW(), NOW())`,
		cs.ID, cs.Title)
	if err != nil {
		return apperr.TransientExternal("create chat session", err)
	}
	return nil
}

func (s *MessageStore) GetChatSession(ctx context.Context, id string) (*domain.ChatSession, error) {
	var cs domain.ChatSession
	err := s.db.QueryRow(ctx, `SELECT id, title, created_at, updated_at FROM chat_sessions WHERE id = $1`, id).
		Scan(&cs.ID, &cs.Title, &cs.CreatedAt, &cs.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("chat session not found: " + id)
	}
	if err != nil {
		return nil, apperr.TransientExternal("get chat session", err)
	}
	return &cs, nil
}

func (s *MessageStore) SaveMessageToChatSession(ctx context.Context, sessionID string, m *domain.ChatMessage) error {
	sourcesJSON, err := json.Marshal(m.Sources)
	if err != nil {
		return apperr.InvalidInput("marshal sources: " + err.Error())
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return apperr.TransientExternal("begin chat message tx", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO chat_messages (id, chat_session_id, role, content, sources, confidence, query_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		m.ID, sessionID, string(m.Role), m.Content, sourcesJSON, string(m.Confidence), string(m.QueryType),
	); err != nil {
		return apperr.TransientExternal("save chat message", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE chat_sessions SET updated_at = NOW() WHERE id = $1`, sessionID); err != nil {
		return apperr.TransientExternal("touch chat session", err)
	}

	return tx.Commit(ctx)
}

func (s *MessageStore) ListChatMessages(ctx context.Context, sessionID string, limit int) ([]*domain.ChatMessage, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, chat_session_id, role, content, sources, confidence, query_type, created_at
		FROM chat_messages
		WHERE chat_session_id = $1
		ORDER BY created_at ASC
		LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, apperr.TransientExternal("list chat messages", err)
	}
	defer rows.Close()

	var msgs []*domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		var sourcesRaw []byte
		var role, confidence, queryType string
		if err := rows.Scan(&m.ID, &m.ChatSessionID, &role, &m.Content, &sourcesRaw, &confidence, &queryType, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = domain.ChatRole(role)
		m.Confidence = domain.Confidence(confidence)
		m.QueryType = domain.QueryKind(queryType)
		if len(sourcesRaw) > 0 {
			if err := json.Unmarshal(sourcesRaw, &m.Sources); err != nil {
				return nil, fmt.Errorf("decode sources: %w", err)
			}
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func (s *MessageStore) UpdateChatSessionTitle(ctx context.Context, sessionID, title string) error {
	_, err := s.db.Exec(ctx, `UPDATE chat_sessions SET title = $1, updated_at = NOW() WHERE id = $2`, title, sessionID)
	if err != nil {
		return apperr.TransientExternal("update chat session title", err)
	}
	return nil
}

// pgVector converts a float32 slice to pgvector's text input format.
func pgVector(v []float32) string {
	if len(v) == 0 {
		return "[0]"
	}
	buf := make([]byte, 0, len(v)*13+2)
	buf = append(buf, '[')
	for i, f := range v {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = fmt.Appendf(buf, "%f", f)
	}
	buf = append(buf, ']')
	return string(buf)
}
