package queue

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Enqueue appends a pending item.
	Enqueue(ctx context.Context, item *Item) error
	// ClaimNext atomically claims the most urgent pending item, flipping it
	// to processing. Returns (nil, nil) when nothing is pending. Concurrent
	// claimers never receive the same item.
	ClaimNext(ctx context.Context) (*Item, error)
	// MarkDone completes a processing item. ErrNotFound when the id does not
	// exist, ErrConflict when the item is not in processing.
	MarkDone(ctx context.Context, id uuid.UUID) error
	// MarkFailed fails a processing item, same contract as MarkDone.
	MarkFailed(ctx context.Context, id uuid.UUID) error
	// List returns items, optionally filtered by status, most urgent first.
	List(ctx context.Context, status string, limit, offset int) ([]*Item, int, error)
	// Counts returns per-status totals, zero-filled for absent statuses.
	Counts(ctx context.Context) (map[string]int, error)
}
