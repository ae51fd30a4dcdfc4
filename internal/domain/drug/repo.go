package drug

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Drugs
	FindByName(ctx context.Context, name string) (*Drug, error)
	Upsert(ctx context.Context, name string, genericName *string) (*Drug, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Drug, error)
	List(ctx context.Context, limit, offset int) ([]*Drug, int, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// Safety data
	GetFreshSafety(ctx context.Context, drugID uuid.UUID) (*SafetyData, error)
	RecordSafety(ctx context.Context, sd *SafetyData) error
	SafetyHistory(ctx context.Context, drugID uuid.UUID, limit, offset int) ([]*SafetyData, int, error)
	PurgeExpiredSafety(ctx context.Context, before time.Time) (int64, error)

	// Search log
	LogSearch(ctx context.Context, rec *SearchRecord) error
	RecentSearches(ctx context.Context, limit, offset int) ([]*SearchRecord, int, error)
}
