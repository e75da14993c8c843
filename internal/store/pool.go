// Package store implements the transactional persistence layer (§3, §4.K):
// a Postgres-backed Store for Document/Section/Source/Reference/Book/Chapter/
// Task/Checkpoint rows and a Qdrant-backed vector index for chapter
// similarity search (the Redis-backed query cache lives in
// internal/retrieval) — mirroring the teacher's
// internal/persistence/databases split of Manager{Search,Vector,Graph,Chat}
// into one narrow interface per concern.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OpenPool opens a pgx connection pool with the teacher's conservative
// defaults and pings it before returning.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 16
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
