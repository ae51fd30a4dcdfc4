package drug

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mal33k-eden/pms-agent-api/internal/platform/db"
)

// -- Mock Repository --

type mockRepo struct {
	drugs    map[uuid.UUID]*Drug
	safety   []*SafetyData
	searches []*SearchRecord
	now      func() time.Time
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		drugs: make(map[uuid.UUID]*Drug),
		now:   time.Now,
	}
}

func (m *mockRepo) FindByName(_ context.Context, name string) (*Drug, error) {
	for _, d := range m.drugs {
		if strings.EqualFold(d.Name, name) {
			return d, nil
		}
	}
	for _, d := range m.drugs {
		if d.GenericName != nil && strings.EqualFold(*d.GenericName, name) {
			return d, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *mockRepo) Upsert(_ context.Context, name string, genericName *string) (*Drug, error) {
	for _, d := range m.drugs {
		if strings.EqualFold(d.Name, name) {
			if genericName != nil {
				d.GenericName = genericName
			}
			return d, nil
		}
	}
	d := &Drug{ID: uuid.New(), Name: name, GenericName: genericName, CreatedAt: m.now()}
	m.drugs[d.ID] = d
	return d, nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Drug, error) {
	d, ok := m.drugs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return d, nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Drug, int, error) {
	var result []*Drug
	for _, d := range m.drugs {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool {
		return strings.ToLower(result[i].Name) < strings.ToLower(result[j].Name)
	})
	total := len(result)
	result = window(result, limit, offset)
	return result, total, nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.drugs[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.drugs, id)
	var kept []*SafetyData
	for _, sd := range m.safety {
		if sd.DrugID != id {
			kept = append(kept, sd)
		}
	}
	m.safety = kept
	for _, rec := range m.searches {
		if rec.DrugID != nil && *rec.DrugID == id {
			rec.DrugID = nil
		}
	}
	return nil
}

func (m *mockRepo) GetFreshSafety(_ context.Context, drugID uuid.UUID) (*SafetyData, error) {
	var best *SafetyData
	now := m.now()
	for _, sd := range m.safety {
		if sd.DrugID != drugID || !sd.ExpiresAt.After(now) {
			continue
		}
		if best == nil || sd.FetchedAt.After(best.FetchedAt) {
			best = sd
		}
	}
	return best, nil
}

func (m *mockRepo) RecordSafety(_ context.Context, sd *SafetyData) error {
	sd.ID = uuid.New()
	m.safety = append(m.safety, sd)
	return nil
}

func (m *mockRepo) SafetyHistory(_ context.Context, drugID uuid.UUID, limit, offset int) ([]*SafetyData, int, error) {
	var result []*SafetyData
	for _, sd := range m.safety {
		if sd.DrugID == drugID {
			result = append(result, sd)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].FetchedAt.After(result[j].FetchedAt)
	})
	total := len(result)
	result = window(result, limit, offset)
	return result, total, nil
}

func (m *mockRepo) PurgeExpiredSafety(_ context.Context, before time.Time) (int64, error) {
	var kept []*SafetyData
	var purged int64
	for _, sd := range m.safety {
		if !sd.ExpiresAt.After(before) {
			purged++
			continue
		}
		kept = append(kept, sd)
	}
	m.safety = kept
	return purged, nil
}

func (m *mockRepo) LogSearch(_ context.Context, rec *SearchRecord) error {
	rec.ID = uuid.New()
	rec.CreatedAt = m.now()
	m.searches = append(m.searches, rec)
	return nil
}

func (m *mockRepo) RecentSearches(_ context.Context, limit, offset int) ([]*SearchRecord, int, error) {
	result := make([]*SearchRecord, len(m.searches))
	copy(result, m.searches)
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	total := len(result)
	result = window(result, limit, offset)
	return result, total, nil
}

func window[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// -- Tests --

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo), repo
}

func strPtr(s string) *string { return &s }

func TestEnsureDrug(t *testing.T) {
	svc, _ := newTestService()

	d, err := svc.EnsureDrug(context.Background(), "Tylenol", strPtr("acetaminophen"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if d.Name != "Tylenol" {
		t.Errorf("expected Tylenol, got %s", d.Name)
	}
	if d.GenericName == nil || *d.GenericName != "acetaminophen" {
		t.Errorf("expected generic acetaminophen, got %v", d.GenericName)
	}
}

func TestEnsureDrug_CaseVariantsCollapse(t *testing.T) {
	svc, _ := newTestService()

	first, err := svc.EnsureDrug(context.Background(), "Tylenol", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.EnsureDrug(context.Background(), "TYLENOL", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != second.ID {
		t.Error("expected case variants to resolve to one row")
	}
	if second.Name != "Tylenol" {
		t.Errorf("expected original casing preserved, got %s", second.Name)
	}
}

func TestEnsureDrug_FillsGenericName(t *testing.T) {
	svc, _ := newTestService()

	d, _ := svc.EnsureDrug(context.Background(), "Advil", nil)
	if d.GenericName != nil {
		t.Fatal("expected no generic yet")
	}
	d, err := svc.EnsureDrug(context.Background(), "advil", strPtr("ibuprofen"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.GenericName == nil || *d.GenericName != "ibuprofen" {
		t.Errorf("expected generic filled in, got %v", d.GenericName)
	}
	// A later upsert without a generic must not clear the known one.
	d, _ = svc.EnsureDrug(context.Background(), "Advil", nil)
	if d.GenericName == nil || *d.GenericName != "ibuprofen" {
		t.Error("expected known generic to survive")
	}
}

func TestEnsureDrug_NameRequired(t *testing.T) {
	svc, _ := newTestService()

	for _, name := range []string{"", "   "} {
		if _, err := svc.EnsureDrug(context.Background(), name, nil); !errors.Is(err, db.ErrInvalid) {
			t.Errorf("name %q: expected ErrInvalid, got %v", name, err)
		}
	}
}

func TestEnsureDrug_TrimsWhitespace(t *testing.T) {
	svc, _ := newTestService()

	d, err := svc.EnsureDrug(context.Background(), "  Zoloft  ", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Name != "Zoloft" {
		t.Errorf("expected trimmed name, got %q", d.Name)
	}
}

func TestFindByName_CaseInsensitive(t *testing.T) {
	svc, _ := newTestService()

	created, _ := svc.EnsureDrug(context.Background(), "Tylenol", nil)
	for _, q := range []string{"Tylenol", "tylenol", "TYLENOL", "tYlEnOl"} {
		found, err := svc.FindByName(context.Background(), q)
		if err != nil {
			t.Fatalf("query %q: unexpected error: %v", q, err)
		}
		if found.ID != created.ID {
			t.Errorf("query %q: expected same row", q)
		}
	}
}

func TestFindByName_MatchesGenericName(t *testing.T) {
	svc, _ := newTestService()

	created, _ := svc.EnsureDrug(context.Background(), "Tylenol", strPtr("acetaminophen"))
	found, err := svc.FindByName(context.Background(), "Acetaminophen")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found.ID != created.ID {
		t.Error("expected generic-name lookup to hit the brand row")
	}
}

func TestFindByName_NotFound(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.FindByName(context.Background(), "Placebozine")
	if !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordSafety_Defaults(t *testing.T) {
	svc, _ := newTestService()
	d, _ := svc.EnsureDrug(context.Background(), "Amoxicillin", nil)

	sd := &SafetyData{DrugID: d.ID, DataSource: SourceManual, ConfidenceScore: 0.9}
	if err := svc.RecordSafety(context.Background(), sd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sd.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if sd.PregnancySafety != SafetyUnknown || sd.BreastfeedingSafety != SafetyUnknown {
		t.Error("expected unset labels to default to unknown")
	}
	if sd.FetchedAt.IsZero() {
		t.Fatal("expected fetched_at to be set")
	}
	if got := sd.ExpiresAt.Sub(sd.FetchedAt); got != DefaultSafetyTTL {
		t.Errorf("expected 30d window, got %s", got)
	}
}

func TestRecordSafety_LowConfidenceShortWindow(t *testing.T) {
	svc, _ := newTestService()
	d, _ := svc.EnsureDrug(context.Background(), "Obscurol", nil)

	sd := &SafetyData{DrugID: d.ID, DataSource: SourceFDA, ConfidenceScore: 0.2}
	if err := svc.RecordSafety(context.Background(), sd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sd.ExpiresAt.Sub(sd.FetchedAt); got != DefaultLowConfidenceTTL {
		t.Errorf("expected 7d window for low confidence, got %s", got)
	}
}

func TestRecordSafety_ExplicitExpiryKept(t *testing.T) {
	svc, _ := newTestService()
	d, _ := svc.EnsureDrug(context.Background(), "Tylenol", nil)

	fetched := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expires := fetched.Add(48 * time.Hour)
	sd := &SafetyData{
		DrugID: d.ID, DataSource: SourceManual, ConfidenceScore: 0.9,
		FetchedAt: fetched, ExpiresAt: expires,
	}
	if err := svc.RecordSafety(context.Background(), sd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sd.ExpiresAt.Equal(expires) {
		t.Errorf("expected caller expiry kept, got %s", sd.ExpiresAt)
	}
}

func TestRecordSafety_ConfidenceRounded(t *testing.T) {
	svc, _ := newTestService()
	d, _ := svc.EnsureDrug(context.Background(), "Tylenol", nil)

	sd := &SafetyData{DrugID: d.ID, DataSource: SourceEnhanced, ConfidenceScore: 0.856}
	if err := svc.RecordSafety(context.Background(), sd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sd.ConfidenceScore != 0.86 {
		t.Errorf("expected 0.86, got %v", sd.ConfidenceScore)
	}
}

func TestRecordSafety_Validation(t *testing.T) {
	svc, _ := newTestService()
	d, _ := svc.EnsureDrug(context.Background(), "Tylenol", nil)

	cases := []struct {
		name string
		sd   *SafetyData
	}{
		{"missing drug id", &SafetyData{DataSource: SourceManual}},
		{"confidence above one", &SafetyData{DrugID: d.ID, DataSource: SourceManual, ConfidenceScore: 1.01}},
		{"confidence below zero", &SafetyData{DrugID: d.ID, DataSource: SourceManual, ConfidenceScore: -0.5}},
		{"negative study count", &SafetyData{DrugID: d.ID, DataSource: SourceManual, StudyCount: -1}},
		{"bad pregnancy label", &SafetyData{DrugID: d.ID, DataSource: SourceManual, PregnancySafety: "sorta"}},
		{"bad breastfeeding label", &SafetyData{DrugID: d.ID, DataSource: SourceManual, BreastfeedingSafety: "maybe"}},
		{"bad data source", &SafetyData{DrugID: d.ID, DataSource: "wikipedia"}},
		{"expiry before fetch", &SafetyData{
			DrugID: d.ID, DataSource: SourceManual,
			FetchedAt: time.Now().UTC(), ExpiresAt: time.Now().UTC().Add(-time.Hour),
		}},
	}
	for _, tc := range cases {
		if err := svc.RecordSafety(context.Background(), tc.sd); !errors.Is(err, db.ErrInvalid) {
			t.Errorf("%s: expected ErrInvalid, got %v", tc.name, err)
		}
	}
}

func TestFreshSafety_MissIsNil(t *testing.T) {
	svc, _ := newTestService()
	d, _ := svc.EnsureDrug(context.Background(), "Tylenol", nil)

	sd, err := svc.FreshSafety(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sd != nil {
		t.Error("expected nil for a drug with no safety data")
	}
}

func TestFreshSafety_NewestWins(t *testing.T) {
	svc, repo := newTestService()
	d, _ := svc.EnsureDrug(context.Background(), "Zoloft", nil)

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return base.Add(2 * time.Hour) }
	older := &SafetyData{
		DrugID: d.ID, DataSource: SourceFDA, ConfidenceScore: 0.5,
		FetchedAt: base, ExpiresAt: base.Add(DefaultSafetyTTL),
	}
	newer := &SafetyData{
		DrugID: d.ID, DataSource: SourceEnhanced, ConfidenceScore: 0.8,
		FetchedAt: base.Add(time.Hour), ExpiresAt: base.Add(time.Hour + DefaultSafetyTTL),
	}
	svc.RecordSafety(context.Background(), older)
	svc.RecordSafety(context.Background(), newer)

	sd, err := svc.FreshSafety(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sd == nil || sd.ID != newer.ID {
		t.Error("expected the freshest row to win")
	}
}

func TestFreshSafety_ExpiredNeverServed(t *testing.T) {
	svc, repo := newTestService()
	d, _ := svc.EnsureDrug(context.Background(), "Atorvastatin", nil)

	fetched := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sd := &SafetyData{
		DrugID: d.ID, DataSource: SourceFDA, ConfidenceScore: 0.6,
		FetchedAt: fetched,
	}
	if err := svc.RecordSafety(context.Background(), sd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 29 days on: still inside the window.
	repo.now = func() time.Time { return fetched.Add(29 * 24 * time.Hour) }
	got, err := svc.FreshSafety(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected data to be served at day 29")
	}

	// 31 days on: expired, treated exactly like a miss.
	repo.now = func() time.Time { return fetched.Add(31 * 24 * time.Hour) }
	got, err = svc.FreshSafety(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Error("expected expired data to be invisible")
	}
}

func TestHistory_IncludesExpired(t *testing.T) {
	svc, repo := newTestService()
	d, _ := svc.EnsureDrug(context.Background(), "Tylenol", nil)

	fetched := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.RecordSafety(context.Background(), &SafetyData{
		DrugID: d.ID, DataSource: SourceFDA, ConfidenceScore: 0.5, FetchedAt: fetched,
	})
	repo.now = func() time.Time { return fetched.Add(60 * 24 * time.Hour) }

	history, total, err := svc.History(context.Background(), d.ID, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(history) != 1 {
		t.Errorf("expected expired row in history, got %d", total)
	}
}

func TestPurgeExpiredSafety(t *testing.T) {
	svc, repo := newTestService()
	d, _ := svc.EnsureDrug(context.Background(), "Tylenol", nil)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.RecordSafety(context.Background(), &SafetyData{
		DrugID: d.ID, DataSource: SourceFDA, ConfidenceScore: 0.5,
		FetchedAt: base, ExpiresAt: base.Add(24 * time.Hour),
	})
	svc.RecordSafety(context.Background(), &SafetyData{
		DrugID: d.ID, DataSource: SourceFDA, ConfidenceScore: 0.5,
		FetchedAt: base, ExpiresAt: time.Now().UTC().Add(24 * time.Hour),
	})

	purged, err := svc.PurgeExpiredSafety(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged, got %d", purged)
	}
	if len(repo.safety) != 1 {
		t.Errorf("expected 1 row kept, got %d", len(repo.safety))
	}
}

func TestSetTTLs(t *testing.T) {
	svc, _ := newTestService()
	svc.SetTTLs(48*time.Hour, 12*time.Hour)
	d, _ := svc.EnsureDrug(context.Background(), "Tylenol", nil)

	sd := &SafetyData{DrugID: d.ID, DataSource: SourceManual, ConfidenceScore: 0.9}
	svc.RecordSafety(context.Background(), sd)
	if got := sd.ExpiresAt.Sub(sd.FetchedAt); got != 48*time.Hour {
		t.Errorf("expected 48h window, got %s", got)
	}

	low := &SafetyData{DrugID: d.ID, DataSource: SourceManual, ConfidenceScore: 0.1}
	svc.RecordSafety(context.Background(), low)
	if got := low.ExpiresAt.Sub(low.FetchedAt); got != 12*time.Hour {
		t.Errorf("expected 12h window, got %s", got)
	}
}

func TestLogSearch(t *testing.T) {
	svc, repo := newTestService()
	d, _ := svc.EnsureDrug(context.Background(), "Tylenol", nil)

	if err := svc.LogSearch(context.Background(), "  tylenol ", &d.ID, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.LogSearch(context.Background(), "placebozine", nil, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.searches) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(repo.searches))
	}
	if repo.searches[0].SearchTerm != "tylenol" {
		t.Errorf("expected trimmed term, got %q", repo.searches[0].SearchTerm)
	}
	if repo.searches[1].DrugID != nil || repo.searches[1].Found {
		t.Error("expected a miss to be logged with no drug and found=false")
	}
}

func TestLogSearch_TermRequired(t *testing.T) {
	svc, _ := newTestService()
	if err := svc.LogSearch(context.Background(), "  ", nil, false); !errors.Is(err, db.ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestRecentSearches_NewestFirst(t *testing.T) {
	svc, repo := newTestService()

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, term := range []string{"first", "second", "third"} {
		tick := base.Add(time.Duration(i) * time.Minute)
		repo.now = func() time.Time { return tick }
		svc.LogSearch(context.Background(), term, nil, false)
	}

	recs, total, err := svc.RecentSearches(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 {
		t.Errorf("expected total 3, got %d", total)
	}
	if len(recs) != 2 || recs[0].SearchTerm != "third" || recs[1].SearchTerm != "second" {
		t.Errorf("expected newest first, got %+v", recs)
	}
}

func TestDeleteDrug_DetachesSearches(t *testing.T) {
	svc, repo := newTestService()
	d, _ := svc.EnsureDrug(context.Background(), "Tylenol", nil)
	svc.LogSearch(context.Background(), "tylenol", &d.ID, true)
	svc.RecordSafety(context.Background(), &SafetyData{
		DrugID: d.ID, DataSource: SourceManual, ConfidenceScore: 0.9,
	})

	if err := svc.DeleteDrug(context.Background(), d.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.safety) != 0 {
		t.Error("expected safety rows to go with the drug")
	}
	if repo.searches[0].DrugID != nil {
		t.Error("expected search log to survive with drug detached")
	}
	if _, err := svc.FindByName(context.Background(), "Tylenol"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
