package session

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Postgres stores sessions in a single key/value table.
type Postgres struct {
	db  *sql.DB
	ttl time.Duration
}

// NewPostgres wraps db and creates the sessions table if needed.
func NewPostgres(ctx context.Context, db *sql.DB, ttl time.Duration) (*Postgres, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return nil, err
	}
	return &Postgres{db: db, ttl: ttl}, nil
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		value   string
		updated time.Time
	)
	err := p.db.QueryRowContext(ctx, `SELECT value, updated_at FROM sessions WHERE key = $1`, key).Scan(&value, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.ttl > 0 && time.Since(updated) > p.ttl {
		_ = p.Delete(ctx, key)
		return nil, ErrNotFound
	}
	return []byte(value), nil
}

func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sessions (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, string(value))
	return err
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE key = $1`, key)
	return err
}
