package feedback

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS feedback (
	id         UUID PRIMARY KEY,
	kind       TEXT NOT NULL,
	rating     INTEGER,
	body       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`

// PgxStore PostgreSQL存储
type PgxStore struct {
	pool *pgxpool.Pool
}

// NewPgxStore 创建存储并确保表存在
func NewPgxStore(ctx context.Context, pool *pgxpool.Pool) (*PgxStore, error) {
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("create feedback table: %w", err)
	}
	return &PgxStore{pool: pool}, nil
}

func (s *PgxStore) Save(ctx context.Context, entry *Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO feedback (id, kind, rating, body, created_at) VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.Type, entry.Rating, entry.Text, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func (s *PgxStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, kind, rating, body, created_at FROM feedback ORDER BY created_at DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.ID, &e.Type, &e.Rating, &e.Text, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan feedback: %w", err)
	}
	return entries, nil
}

// Close 关闭连接池
func (s *PgxStore) Close() {
	s.pool.Close()
}
