package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tripstack/contentfetch/internal/fetch"
	"github.com/tripstack/contentfetch/internal/telemetry"
)

// pool abstracts pgxpool.Pool for testing with pgxmock.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the optional external cache tier. Expiry is enforced in SQL,
// so restarts of this process never serve stale rows.
//
// Expected schema:
//
//	CREATE TABLE fetch_cache (
//	    key        TEXT PRIMARY KEY,
//	    payload    JSONB NOT NULL,
//	    expires_at TIMESTAMPTZ NOT NULL
//	);
type Postgres struct {
	pool pool
}

// NewPostgres connects a Postgres cache tier.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create cache pool: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping cache database: %w", err)
	}
	return &Postgres{pool: p}, nil
}

// NewPostgresWithPool wires an existing pool (used by tests).
func NewPostgresWithPool(p pool) *Postgres {
	return &Postgres{pool: p}
}

// Close releases the underlying pool when one was created here.
func (p *Postgres) Close() {
	if closer, ok := p.pool.(interface{ Close() }); ok {
		closer.Close()
	}
}

// Get loads a non-expired entry along with its absolute expiry, so callers
// promoting the value into a faster tier can cap its remaining lifetime.
func (p *Postgres) Get(ctx context.Context, key string) (fetch.Result, time.Time, bool, error) {
	const query = `SELECT payload, expires_at FROM fetch_cache WHERE key = $1 AND expires_at > now()`

	var (
		payload   []byte
		expiresAt time.Time
	)
	err := p.pool.QueryRow(ctx, query, key).Scan(&payload, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		telemetry.ObserveCacheOp("postgres", "get", "miss")
		return fetch.Result{}, time.Time{}, false, nil
	}
	if err != nil {
		return fetch.Result{}, time.Time{}, false, fmt.Errorf("query cache row: %w", err)
	}

	var value fetch.Result
	if err := json.Unmarshal(payload, &value); err != nil {
		return fetch.Result{}, time.Time{}, false, fmt.Errorf("decode cache payload: %w", err)
	}
	telemetry.ObserveCacheOp("postgres", "get", "hit")
	return value, expiresAt, true, nil
}

// Set upserts the entry with an absolute expiry.
func (p *Postgres) Set(ctx context.Context, key string, value fetch.Result, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache payload: %w", err)
	}

	const query = `
		INSERT INTO fetch_cache (key, payload, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET payload = EXCLUDED.payload, expires_at = EXCLUDED.expires_at
	`
	if _, err := p.pool.Exec(ctx, query, key, payload, time.Now().UTC().Add(ttl)); err != nil {
		return fmt.Errorf("upsert cache row: %w", err)
	}
	telemetry.ObserveCacheOp("postgres", "set", "ok")
	return nil
}

// Delete removes the entry.
func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM fetch_cache WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete cache row: %w", err)
	}
	telemetry.ObserveCacheOp("postgres", "delete", "ok")
	return nil
}
