package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mal33k-eden/pms-agent-api/internal/platform/db"
)

const maxNameLen = 255

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Enqueue adds a drug name for background enrichment. Priority 0 means
// unset and takes the default.
func (s *Service) Enqueue(ctx context.Context, drugName string, priority int) (*Item, error) {
	drugName = strings.TrimSpace(drugName)
	if drugName == "" {
		return nil, fmt.Errorf("%w: drug name is required", db.ErrInvalid)
	}
	if len(drugName) > maxNameLen {
		return nil, fmt.Errorf("%w: drug name exceeds %d characters", db.ErrInvalid, maxNameLen)
	}
	if priority == 0 {
		priority = DefaultPriority
	}
	if priority < MinPriority || priority > MaxPriority {
		return nil, fmt.Errorf("%w: priority %d outside [%d,%d]", db.ErrInvalid, priority, MinPriority, MaxPriority)
	}
	item := &Item{DrugName: drugName, Priority: priority, Status: StatusPending}
	if err := s.repo.Enqueue(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// Claim hands out the most urgent pending item, or (nil, nil) when the
// queue is drained.
func (s *Service) Claim(ctx context.Context) (*Item, error) {
	return s.repo.ClaimNext(ctx)
}

func (s *Service) MarkDone(ctx context.Context, id uuid.UUID) error {
	return s.repo.MarkDone(ctx, id)
}

func (s *Service) MarkFailed(ctx context.Context, id uuid.UUID) error {
	return s.repo.MarkFailed(ctx, id)
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*Item, int, error) {
	if status != "" && !ValidStatus(status) {
		return nil, 0, fmt.Errorf("%w: status %q", db.ErrInvalid, status)
	}
	return s.repo.List(ctx, status, limit, offset)
}

func (s *Service) Counts(ctx context.Context) (map[string]int, error) {
	return s.repo.Counts(ctx)
}
