package persistence

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
	"github.com/bbangmxn/mailintel/pkg/apperr"
)

// ChunkStore is the pgvector-backed implementation of out.ChunkStore, for
// messages too long to embed as a single vector.
type ChunkStore struct {
	db *pgxpool.Pool
}

// NewChunkStore creates a ChunkStore.
func NewChunkStore(db *pgxpool.Pool) *ChunkStore {
	return &ChunkStore{db: db}
}

var _ out.ChunkStore = (*ChunkStore)(nil)

func (s *ChunkStore) SaveChunks(ctx context.Context, messageID string, chunks []domain.EmailChunk) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return apperr.TransientExternal("begin save chunks tx", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM email_chunks WHERE message_id = $1`, messageID); err != nil {
		return apperr.TransientExternal("clear existing chunks", err)
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(`
			INSERT INTO email_chunks (message_id, chunk_index, text, embedding)
			VALUES ($1, $2, $3, $4)`,
			messageID, c.Index, c.Text, pgVector(c.Embedding))
	}
	br := tx.SendBatch(ctx, batch)
	for range chunks {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return apperr.TransientExternal("insert chunk", err)
		}
	}
	if err := br.Close(); err != nil {
		return apperr.TransientExternal("close chunk batch", err)
	}

	return tx.Commit(ctx)
}

func (s *ChunkStore) GetChunks(ctx context.Context, messageID string) ([]domain.EmailChunk, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, message_id, chunk_index, text
		FROM email_chunks
		WHERE message_id = $1
		ORDER BY chunk_index ASC`, messageID)
	if err != nil {
		return nil, apperr.TransientExternal("get chunks", err)
	}
	defer rows.Close()

	var chunks []domain.EmailChunk
	for rows.Next() {
		var c domain.EmailChunk
		if err := rows.Scan(&c.ID, &c.MessageID, &c.Index, &c.Text); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *ChunkStore) DeleteChunks(ctx context.Context, messageID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM email_chunks WHERE message_id = $1`, messageID); err != nil {
		return apperr.TransientExternal("delete chunks", err)
	}
	return nil
}
