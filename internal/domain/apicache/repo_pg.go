package apicache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mal33k-eden/pms-agent-api/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *repoPG) Get(ctx context.Context, key string) (*Entry, error) {
	var e Entry
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT cache_key, data, expires_at FROM api_cache
		WHERE cache_key = $1 AND expires_at > NOW()`, key,
	).Scan(&e.Key, &e.Data, &e.ExpiresAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, db.WrapError(err)
	}
	return &e, nil
}

func (r *repoPG) Put(ctx context.Context, key string, data json.RawMessage, expiresAt time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO api_cache (cache_key, data, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (cache_key) DO UPDATE
			SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at`,
		key, data, expiresAt)
	return db.WrapError(err)
}

func (r *repoPG) Delete(ctx context.Context, key string) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM api_cache WHERE cache_key = $1`, key)
	return db.WrapError(err)
}

func (r *repoPG) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM api_cache WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, db.WrapError(err)
	}
	return tag.RowsAffected(), nil
}
