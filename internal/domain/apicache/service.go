package apicache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mal33k-eden/pms-agent-api/internal/platform/db"
)

// DefaultTTL is how long an upstream response stays reusable.
const DefaultTTL = 24 * time.Hour

const maxKeyLen = 255

type Service struct {
	repo Repository
	ttl  time.Duration
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, ttl: DefaultTTL}
}

// SetTTL overrides the default expiry window. Zero keeps the current setting.
func (s *Service) SetTTL(ttl time.Duration) {
	if ttl > 0 {
		s.ttl = ttl
	}
}

func validKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: cache key is required", db.ErrInvalid)
	}
	if len(key) > maxKeyLen {
		return fmt.Errorf("%w: cache key exceeds %d characters", db.ErrInvalid, maxKeyLen)
	}
	return nil
}

// Get returns the cached payload for key, or (nil, nil) on a miss. An
// expired entry is a miss.
func (s *Service) Get(ctx context.Context, key string) (json.RawMessage, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	e, err := s.repo.Get(ctx, key)
	if err != nil || e == nil {
		return nil, err
	}
	return e.Data, nil
}

// Put stores data under key with the default expiry window.
func (s *Service) Put(ctx context.Context, key string, data json.RawMessage) error {
	return s.PutFor(ctx, key, data, s.ttl)
}

// PutFor stores data under key with an explicit expiry window.
func (s *Service) PutFor(ctx context.Context, key string, data json.RawMessage, ttl time.Duration) error {
	if err := validKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: cache ttl must be positive", db.ErrInvalid)
	}
	if len(data) == 0 || !json.Valid(data) {
		return fmt.Errorf("%w: cache payload must be valid JSON", db.ErrInvalid)
	}
	return s.repo.Put(ctx, key, data, time.Now().UTC().Add(ttl))
}

func (s *Service) Delete(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	return s.repo.Delete(ctx, key)
}

// PurgeExpired removes every entry past its expiry and reports how many went.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.PurgeExpired(ctx, time.Now().UTC())
}
