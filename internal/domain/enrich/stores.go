package enrich

import (
	"context"

	"github.com/google/uuid"

	"github.com/mal33k-eden/pms-agent-api/internal/domain/drug"
	"github.com/mal33k-eden/pms-agent-api/internal/domain/queue"
	"github.com/mal33k-eden/pms-agent-api/internal/platform/sources"
)

// DrugStore is the slice of the drug service the enricher consumes.
// *drug.Service satisfies it.
type DrugStore interface {
	FindByName(ctx context.Context, name string) (*drug.Drug, error)
	FreshSafety(ctx context.Context, drugID uuid.UUID) (*drug.SafetyData, error)
	EnsureDrug(ctx context.Context, name string, genericName *string) (*drug.Drug, error)
	RecordSafety(ctx context.Context, sd *drug.SafetyData) error
	LogSearch(ctx context.Context, term string, drugID *uuid.UUID, found bool) error
	PurgeExpiredSafety(ctx context.Context) (int64, error)
}

// QueueStore is the slice of the queue service the async endpoint and the
// worker consume. *queue.Service satisfies it.
type QueueStore interface {
	Enqueue(ctx context.Context, drugName string, priority int) (*queue.Item, error)
	Claim(ctx context.Context) (*queue.Item, error)
	MarkDone(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

// CachePurger is satisfied by *apicache.Service.
type CachePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Fetcher is the slice of the sources client the enricher consumes.
// *sources.Client satisfies it.
type Fetcher interface {
	SearchDrugLabel(ctx context.Context, drugName string) (*sources.FDALabel, error)
	SearchSPL(ctx context.Context, drugName string) (*sources.DailyMedSPL, error)
	ResearchSummary(ctx context.Context, drugName string) (*sources.PubMedResearch, error)
}
