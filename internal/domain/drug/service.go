package drug

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mal33k-eden/pms-agent-api/internal/platform/db"
)

const (
	// DefaultSafetyTTL is how long a recorded assessment stays servable.
	DefaultSafetyTTL = 30 * 24 * time.Hour
	// DefaultLowConfidenceTTL shortens the window for weakly-sourced rows so
	// they get re-fetched sooner.
	DefaultLowConfidenceTTL = 7 * 24 * time.Hour
	// LowConfidenceThreshold is the confidence below which the short TTL applies.
	LowConfidenceThreshold = 0.3

	maxNameLen = 255
)

type Service struct {
	repo             Repository
	safetyTTL        time.Duration
	lowConfidenceTTL time.Duration
}

func NewService(repo Repository) *Service {
	return &Service{
		repo:             repo,
		safetyTTL:        DefaultSafetyTTL,
		lowConfidenceTTL: DefaultLowConfidenceTTL,
	}
}

// SetTTLs overrides the freshness windows applied to newly recorded safety
// data. Zero values keep the current setting.
func (s *Service) SetTTLs(safety, lowConfidence time.Duration) {
	if safety > 0 {
		s.safetyTTL = safety
	}
	if lowConfidence > 0 {
		s.lowConfidenceTTL = lowConfidence
	}
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: drug name is required", db.ErrInvalid)
	}
	if len(name) > maxNameLen {
		return "", fmt.Errorf("%w: drug name exceeds %d characters", db.ErrInvalid, maxNameLen)
	}
	return name, nil
}

func (s *Service) FindByName(ctx context.Context, name string) (*Drug, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	return s.repo.FindByName(ctx, name)
}

// EnsureDrug creates the drug row for name or returns the existing one,
// filling in the generic name if it was previously unknown.
func (s *Service) EnsureDrug(ctx context.Context, name string, genericName *string) (*Drug, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	if genericName != nil {
		g := strings.TrimSpace(*genericName)
		if g == "" {
			genericName = nil
		} else if len(g) > maxNameLen {
			return nil, fmt.Errorf("%w: generic name exceeds %d characters", db.ErrInvalid, maxNameLen)
		} else {
			genericName = &g
		}
	}
	return s.repo.Upsert(ctx, name, genericName)
}

func (s *Service) GetDrug(ctx context.Context, id uuid.UUID) (*Drug, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListDrugs(ctx context.Context, limit, offset int) ([]*Drug, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) DeleteDrug(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// FreshSafety returns the newest non-expired assessment for the drug, or
// (nil, nil) when nothing servable exists.
func (s *Service) FreshSafety(ctx context.Context, drugID uuid.UUID) (*SafetyData, error) {
	if drugID == uuid.Nil {
		return nil, fmt.Errorf("%w: drug id is required", db.ErrInvalid)
	}
	return s.repo.GetFreshSafety(ctx, drugID)
}

// RecordSafety validates and appends an assessment. Earlier rows are never
// updated; the freshest row wins at read time.
func (s *Service) RecordSafety(ctx context.Context, sd *SafetyData) error {
	if sd.DrugID == uuid.Nil {
		return fmt.Errorf("%w: drug id is required", db.ErrInvalid)
	}
	if sd.PregnancySafety == "" {
		sd.PregnancySafety = SafetyUnknown
	}
	if !ValidSafetyLabel(sd.PregnancySafety) {
		return fmt.Errorf("%w: pregnancy safety %q", db.ErrInvalid, sd.PregnancySafety)
	}
	if sd.BreastfeedingSafety == "" {
		sd.BreastfeedingSafety = SafetyUnknown
	}
	if !ValidSafetyLabel(sd.BreastfeedingSafety) {
		return fmt.Errorf("%w: breastfeeding safety %q", db.ErrInvalid, sd.BreastfeedingSafety)
	}
	if !ValidDataSource(sd.DataSource) {
		return fmt.Errorf("%w: data source %q", db.ErrInvalid, sd.DataSource)
	}
	sd.ConfidenceScore = roundConfidence(sd.ConfidenceScore)
	if sd.ConfidenceScore < 0 || sd.ConfidenceScore > 1 {
		return fmt.Errorf("%w: confidence %.2f outside [0,1]", db.ErrInvalid, sd.ConfidenceScore)
	}
	if sd.StudyCount < 0 {
		return fmt.Errorf("%w: study count %d", db.ErrInvalid, sd.StudyCount)
	}
	if sd.FetchedAt.IsZero() {
		sd.FetchedAt = time.Now().UTC()
	}
	if sd.ExpiresAt.IsZero() {
		ttl := s.safetyTTL
		if sd.ConfidenceScore < LowConfidenceThreshold {
			ttl = s.lowConfidenceTTL
		}
		sd.ExpiresAt = sd.FetchedAt.Add(ttl)
	}
	if !sd.ExpiresAt.After(sd.FetchedAt) {
		return fmt.Errorf("%w: expiry %s not after fetch time", db.ErrInvalid, sd.ExpiresAt.Format(time.RFC3339))
	}
	return s.repo.RecordSafety(ctx, sd)
}

func (s *Service) History(ctx context.Context, drugID uuid.UUID, limit, offset int) ([]*SafetyData, int, error) {
	if drugID == uuid.Nil {
		return nil, 0, fmt.Errorf("%w: drug id is required", db.ErrInvalid)
	}
	return s.repo.SafetyHistory(ctx, drugID, limit, offset)
}

// PurgeExpiredSafety deletes assessments whose freshness window has closed.
func (s *Service) PurgeExpiredSafety(ctx context.Context) (int64, error) {
	return s.repo.PurgeExpiredSafety(ctx, time.Now().UTC())
}

// LogSearch appends to the search log. The term is recorded as searched,
// whether or not it resolved to a drug.
func (s *Service) LogSearch(ctx context.Context, term string, drugID *uuid.UUID, found bool) error {
	term = strings.TrimSpace(term)
	if term == "" {
		return fmt.Errorf("%w: search term is required", db.ErrInvalid)
	}
	if len(term) > maxNameLen {
		term = term[:maxNameLen]
	}
	rec := &SearchRecord{SearchTerm: term, DrugID: drugID, Found: found}
	return s.repo.LogSearch(ctx, rec)
}

func (s *Service) RecentSearches(ctx context.Context, limit, offset int) ([]*SearchRecord, int, error) {
	return s.repo.RecentSearches(ctx, limit, offset)
}

func roundConfidence(c float64) float64 {
	return math.Round(c*100) / 100
}
