package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
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

const itemCols = `id, drug_name, priority, status, created_at`

func (r *repoPG) Enqueue(ctx context.Context, item *Item) error {
	item.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO processing_queue (id, drug_name, priority, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		item.ID, item.DrugName, item.Priority, item.Status,
	).Scan(&item.CreatedAt)
	return db.WrapError(err)
}

func (r *repoPG) ClaimNext(ctx context.Context) (*Item, error) {
	// SKIP LOCKED keeps concurrent claimers from blocking on, or double
	// claiming, the same row. Ties on priority break oldest first.
	var item Item
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE processing_queue SET status = $1
		WHERE id = (
			SELECT id FROM processing_queue
			WHERE status = $2
			ORDER BY priority, created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+itemCols,
		StatusProcessing, StatusPending,
	).Scan(&item.ID, &item.DrugName, &item.Priority, &item.Status, &item.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, db.WrapError(err)
	}
	return &item, nil
}

func (r *repoPG) MarkDone(ctx context.Context, id uuid.UUID) error {
	return r.finish(ctx, id, StatusDone)
}

func (r *repoPG) MarkFailed(ctx context.Context, id uuid.UUID) error {
	return r.finish(ctx, id, StatusFailed)
}

func (r *repoPG) finish(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE processing_queue SET status = $1
		WHERE id = $2 AND status = $3`,
		status, id, StatusProcessing)
	if err != nil {
		return db.WrapError(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	// Zero rows: either the id is unknown or the item is not in processing.
	var current string
	err = r.conn(ctx).QueryRow(ctx,
		`SELECT status FROM processing_queue WHERE id = $1`, id).Scan(&current)
	if err != nil {
		return db.WrapError(err)
	}
	return fmt.Errorf("%w: item is %s, not %s", db.ErrConflict, current, StatusProcessing)
}

func (r *repoPG) List(ctx context.Context, status string, limit, offset int) ([]*Item, int, error) {
	var (
		total int
		err   error
	)
	if status == "" {
		err = r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM processing_queue`).Scan(&total)
	} else {
		err = r.conn(ctx).QueryRow(ctx,
			`SELECT COUNT(*) FROM processing_queue WHERE status = $1`, status).Scan(&total)
	}
	if err != nil {
		return nil, 0, db.WrapError(err)
	}

	var rows pgx.Rows
	if status == "" {
		rows, err = r.conn(ctx).Query(ctx, `
			SELECT `+itemCols+` FROM processing_queue
			ORDER BY priority, created_at LIMIT $1 OFFSET $2`, limit, offset)
	} else {
		rows, err = r.conn(ctx).Query(ctx, `
			SELECT `+itemCols+` FROM processing_queue
			WHERE status = $1
			ORDER BY priority, created_at LIMIT $2 OFFSET $3`, status, limit, offset)
	}
	if err != nil {
		return nil, 0, db.WrapError(err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.DrugName, &item.Priority, &item.Status, &item.CreatedAt); err != nil {
			return nil, 0, db.WrapError(err)
		}
		items = append(items, &item)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT status, COUNT(*) FROM processing_queue GROUP BY status`)
	if err != nil {
		return nil, db.WrapError(err)
	}
	defer rows.Close()

	counts := map[string]int{
		StatusPending:    0,
		StatusProcessing: 0,
		StatusDone:       0,
		StatusFailed:     0,
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, db.WrapError(err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
