package apicache

import (
	"context"
	"encoding/json"
	"time"
)

type Repository interface {
	// Get returns the entry for key, or (nil, nil) when the key is absent
	// or its entry has expired. The two cases are indistinguishable.
	Get(ctx context.Context, key string) (*Entry, error)
	// Put stores data under key, replacing any existing entry in a single
	// statement so concurrent writers cannot race a delete-then-insert.
	Put(ctx context.Context, key string, data json.RawMessage, expiresAt time.Time) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// PurgeExpired removes entries whose expiry is at or before the cutoff.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}
