package persistence

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver for sqlx

	"github.com/bbangmxn/mailintel/core/port/out"
	"github.com/bbangmxn/mailintel/pkg/apperr"
)

// NewSQLXPool opens a second, struct-scanning pool over databaseURL for
// the read-heavy aggregate queries, mirroring a common split between
// a pgxpool used for transactional/vector work and an sqlx pool used for
// convenience scanning. simple_protocol avoids prepared-statement
// conflicts with the pgxpool driver sharing the same database.
func NewSQLXPool(databaseURL string) (*sqlx.DB, error) {
	dsn := databaseURL
	if strings.Contains(dsn, "?") {
		dsn += "&default_query_exec_mode=simple_protocol"
	} else {
		dsn += "?default_query_exec_mode=simple_protocol"
	}

	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, apperr.TransientExternal("connect sqlx pool", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	return db, nil
}

// AnalyticsReader answers the dashboard-style aggregate queries
// (CountByTopic, GetDailyEmailStats, GetTopSenders, GetTotalMessageCount,
// GetUnreadCount, GetLabelCounts) over a dedicated sqlx pool, struct-
// scanning directly into the out package's result types instead of the
// pgx.Rows.Scan calls the rest of MessageStore uses.
type AnalyticsReader struct {
	db *sqlx.DB
}

// NewAnalyticsReader creates an AnalyticsReader. db may be nil, in which
// case it returns nil and MessageStore falls back to its own
// pgxpool-backed implementation.
func NewAnalyticsReader(db *sqlx.DB) *AnalyticsReader {
	if db == nil {
		return nil
	}
	return &AnalyticsReader{db: db}
}

func (r *AnalyticsReader) CountByTopic(ctx context.Context, topic string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM messages
		WHERE subject ILIKE '%' || $1 || '%' OR snippet ILIKE '%' || $1 || '%'`, topic)
	if err != nil {
		return 0, apperr.TransientExternal("count by topic", err)
	}
	return count, nil
}

func (r *AnalyticsReader) GetDailyEmailStats(ctx context.Context, days int) ([]out.DailyStat, error) {
	var stats []out.DailyStat
	err := r.db.SelectContext(ctx, &stats, `
		SELECT to_char(to_timestamp(internal_ts / 1000.0), 'YYYY-MM-DD') AS date, COUNT(*) AS count
		FROM messages
		WHERE to_timestamp(internal_ts / 1000.0) >= NOW() - ($1 || ' days')::interval
		GROUP BY date
		ORDER BY date DESC`, days)
	if err != nil {
		return nil, apperr.TransientExternal("daily email stats", err)
	}
	return stats, nil
}

func (r *AnalyticsReader) GetTopSenders(ctx context.Context, limit int) ([]out.SenderCount, error) {
	var senders []out.SenderCount
	err := r.db.SelectContext(ctx, &senders, `
		SELECT sender, COUNT(*) AS count FROM messages
		GROUP BY sender ORDER BY count DESC LIMIT $1`, limit)
	if err != nil {
		return nil, apperr.TransientExternal("top senders", err)
	}
	return senders, nil
}

func (r *AnalyticsReader) GetTotalMessageCount(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM messages`); err != nil {
		return 0, apperr.TransientExternal("total message count", err)
	}
	return n, nil
}

func (r *AnalyticsReader) GetUnreadCount(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM messages WHERE 'UNREAD' = ANY(labels)`); err != nil {
		return 0, apperr.TransientExternal("unread count", err)
	}
	return n, nil
}

func (r *AnalyticsReader) GetLabelCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT unnest(c.labels) AS label, COUNT(*) AS count
		FROM classifications c
		GROUP BY label`)
	if err != nil {
		return nil, apperr.TransientExternal("label counts", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var row struct {
			Label string `db:"label"`
			Count int    `db:"count"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, err
		}
		counts[row.Label] = row.Count
	}
	return counts, rows.Err()
}
