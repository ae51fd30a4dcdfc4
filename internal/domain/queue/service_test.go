package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mal33k-eden/pms-agent-api/internal/platform/db"
)

// -- Mock Repository --

type mockRepo struct {
	items map[uuid.UUID]*Item
	seq   int
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Item)}
}

func (m *mockRepo) Enqueue(_ context.Context, item *Item) error {
	item.ID = uuid.New()
	m.seq++
	item.CreatedAt = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.seq) * time.Second)
	m.items[item.ID] = item
	return nil
}

func (m *mockRepo) ClaimNext(_ context.Context) (*Item, error) {
	var best *Item
	for _, item := range m.items {
		if item.Status != StatusPending {
			continue
		}
		if best == nil ||
			item.Priority < best.Priority ||
			(item.Priority == best.Priority && item.CreatedAt.Before(best.CreatedAt)) {
			best = item
		}
	}
	if best == nil {
		return nil, nil
	}
	best.Status = StatusProcessing
	return best, nil
}

func (m *mockRepo) MarkDone(_ context.Context, id uuid.UUID) error {
	return m.finish(id, StatusDone)
}

func (m *mockRepo) MarkFailed(_ context.Context, id uuid.UUID) error {
	return m.finish(id, StatusFailed)
}

func (m *mockRepo) finish(id uuid.UUID, status string) error {
	item, ok := m.items[id]
	if !ok {
		return db.ErrNotFound
	}
	if item.Status != StatusProcessing {
		return fmt.Errorf("%w: item is %s, not %s", db.ErrConflict, item.Status, StatusProcessing)
	}
	item.Status = status
	return nil
}

func (m *mockRepo) List(_ context.Context, status string, limit, offset int) ([]*Item, int, error) {
	var result []*Item
	for _, item := range m.items {
		if status == "" || item.Status == status {
			result = append(result, item)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority < result[j].Priority
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	total := len(result)
	if offset >= len(result) {
		return nil, total, nil
	}
	result = result[offset:]
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, total, nil
}

func (m *mockRepo) Counts(_ context.Context) (map[string]int, error) {
	counts := map[string]int{
		StatusPending: 0, StatusProcessing: 0, StatusDone: 0, StatusFailed: 0,
	}
	for _, item := range m.items {
		counts[item.Status]++
	}
	return counts, nil
}

// -- Tests --

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo), repo
}

func TestEnqueue_Defaults(t *testing.T) {
	svc, _ := newTestService()

	item, err := svc.Enqueue(context.Background(), "Metformin", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if item.Priority != DefaultPriority {
		t.Errorf("expected default priority %d, got %d", DefaultPriority, item.Priority)
	}
	if item.Status != StatusPending {
		t.Errorf("expected pending, got %s", item.Status)
	}
}

func TestEnqueue_ExplicitPriority(t *testing.T) {
	svc, _ := newTestService()

	item, err := svc.Enqueue(context.Background(), "Metformin", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Priority != 1 {
		t.Errorf("expected priority 1, got %d", item.Priority)
	}
}

func TestEnqueue_Validation(t *testing.T) {
	svc, _ := newTestService()

	cases := []struct {
		name     string
		drugName string
		priority int
	}{
		{"empty name", "", 0},
		{"blank name", "   ", 0},
		{"priority too high", "Metformin", 11},
		{"priority negative", "Metformin", -3},
	}
	for _, tc := range cases {
		if _, err := svc.Enqueue(context.Background(), tc.drugName, tc.priority); !errors.Is(err, db.ErrInvalid) {
			t.Errorf("%s: expected ErrInvalid, got %v", tc.name, err)
		}
	}
}

func TestClaim_PriorityOrder(t *testing.T) {
	svc, _ := newTestService()

	svc.Enqueue(context.Background(), "routine-a", 5)
	svc.Enqueue(context.Background(), "urgent", 1)
	svc.Enqueue(context.Background(), "routine-b", 5)

	order := []string{"urgent", "routine-a", "routine-b"}
	for _, want := range order {
		item, err := svc.Claim(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if item == nil || item.DrugName != want {
			t.Fatalf("expected %s next, got %+v", want, item)
		}
		if item.Status != StatusProcessing {
			t.Errorf("expected claimed item in processing, got %s", item.Status)
		}
	}

	item, err := svc.Claim(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item != nil {
		t.Error("expected nil once drained")
	}
}

func TestClaim_EmptyQueue(t *testing.T) {
	svc, _ := newTestService()

	item, err := svc.Claim(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item != nil {
		t.Error("expected nil on empty queue")
	}
}

func TestMarkDone(t *testing.T) {
	svc, repo := newTestService()
	svc.Enqueue(context.Background(), "Metformin", 0)

	item, _ := svc.Claim(context.Background())
	if err := svc.MarkDone(context.Background(), item.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.items[item.ID].Status != StatusDone {
		t.Errorf("expected done, got %s", repo.items[item.ID].Status)
	}
}

func TestMarkFailed(t *testing.T) {
	svc, repo := newTestService()
	svc.Enqueue(context.Background(), "Metformin", 0)

	item, _ := svc.Claim(context.Background())
	if err := svc.MarkFailed(context.Background(), item.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.items[item.ID].Status != StatusFailed {
		t.Errorf("expected failed, got %s", repo.items[item.ID].Status)
	}
}

func TestMarkDone_NotClaimed(t *testing.T) {
	svc, _ := newTestService()

	item, _ := svc.Enqueue(context.Background(), "Metformin", 0)
	if err := svc.MarkDone(context.Background(), item.ID); !errors.Is(err, db.ErrConflict) {
		t.Errorf("expected ErrConflict for pending item, got %v", err)
	}
}

func TestMarkDone_UnknownID(t *testing.T) {
	svc, _ := newTestService()

	if err := svc.MarkDone(context.Background(), uuid.New()); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkDone_Terminal(t *testing.T) {
	svc, _ := newTestService()
	svc.Enqueue(context.Background(), "Metformin", 0)

	item, _ := svc.Claim(context.Background())
	svc.MarkDone(context.Background(), item.ID)
	if err := svc.MarkFailed(context.Background(), item.ID); !errors.Is(err, db.ErrConflict) {
		t.Errorf("expected terminal state to stick, got %v", err)
	}
}

func TestList_FilterByStatus(t *testing.T) {
	svc, _ := newTestService()
	svc.Enqueue(context.Background(), "a", 0)
	svc.Enqueue(context.Background(), "b", 0)
	svc.Claim(context.Background())

	pending, total, err := svc.List(context.Background(), StatusPending, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(pending) != 1 {
		t.Errorf("expected 1 pending, got %d", total)
	}

	all, total, err := svc.List(context.Background(), "", 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(all) != 2 {
		t.Errorf("expected 2 items overall, got %d", total)
	}
}

func TestList_InvalidStatus(t *testing.T) {
	svc, _ := newTestService()

	if _, _, err := svc.List(context.Background(), "bogus", 20, 0); !errors.Is(err, db.ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestCounts_ZeroFilled(t *testing.T) {
	svc, _ := newTestService()
	svc.Enqueue(context.Background(), "a", 0)
	svc.Enqueue(context.Background(), "b", 0)
	item, _ := svc.Claim(context.Background())
	svc.MarkDone(context.Background(), item.ID)

	counts, err := svc.Counts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts[StatusPending] != 1 || counts[StatusDone] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
	if _, ok := counts[StatusFailed]; !ok {
		t.Error("expected failed key present even at zero")
	}
	if _, ok := counts[StatusProcessing]; !ok {
		t.Error("expected processing key present even at zero")
	}
}
