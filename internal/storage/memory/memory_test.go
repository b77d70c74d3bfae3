package memory

import (
	"context"
	"errors"
	"testing"

	"cartstorm/internal/domain"
	"cartstorm/internal/storage"
)

func testDescriptor(agentID string) *domain.AgentDescriptor {
	hour := make([]float64, 24)
	day := make([]float64, 7)
	for i := range hour {
		hour[i] = 1.0
	}
	for i := range day {
		day[i] = 1.0
	}
	return &domain.AgentDescriptor{
		AgentID:           agentID,
		PriceSensitivity:  0.5,
		ShoppingFrequency: 0.3,
		HourAffinity:      hour,
		DayAffinity:       day,
		BudgetCents:       5000,
	}
}

func TestPersonaStoreInsertAndLoadAll(t *testing.T) {
	ctx := context.Background()
	store := NewPersonaStore()

	for _, id := range []string{"agent-003", "agent-001", "agent-002"} {
		if err := store.Insert(ctx, testDescriptor(id)); err != nil {
			t.Fatalf("Insert(%s) error: %v", id, err)
		}
	}

	all, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 personas, got %d", len(all))
	}
	// Sorted by agent_id.
	for i, want := range []string{"agent-001", "agent-002", "agent-003"} {
		if all[i].AgentID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, all[i].AgentID)
		}
	}
}

func TestPersonaStoreDuplicateKey(t *testing.T) {
	ctx := context.Background()
	store := NewPersonaStore()

	if err := store.Insert(ctx, testDescriptor("agent-001")); err != nil {
		t.Fatalf("first Insert error: %v", err)
	}
	err := store.Insert(ctx, testDescriptor("agent-001"))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestPersonaStoreRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	store := NewPersonaStore()

	bad := testDescriptor("agent-001")
	bad.PriceSensitivity = 1.5
	err := store.Insert(ctx, bad)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for nil, got %v", err)
	}
}

func TestPersonaStoreCopiesOnRead(t *testing.T) {
	ctx := context.Background()
	store := NewPersonaStore()

	if err := store.Insert(ctx, testDescriptor("agent-001")); err != nil {
		t.Fatalf("Insert error: %v", err)
	}

	first, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll error: %v", err)
	}
	first[0].HourAffinity[0] = 99.0
	first[0].BudgetCents = 1

	second, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll error: %v", err)
	}
	if second[0].HourAffinity[0] != 1.0 {
		t.Error("mutation through returned slice leaked into store")
	}
	if second[0].BudgetCents != 5000 {
		t.Error("mutation through returned struct leaked into store")
	}
}

func TestSessionCleanerAbandonOrphans(t *testing.T) {
	ctx := context.Background()
	cleaner := NewSessionCleaner()

	cleaner.Track("run-1", "sess-a", SessionInProgress)
	cleaner.Track("run-1", "sess-b", SessionInProgress)
	cleaner.Track("run-1", "sess-c", SessionCompleted)
	cleaner.Track("run-2", "sess-d", SessionInProgress)

	swept, err := cleaner.AbandonOrphans(ctx, "run-1")
	if err != nil {
		t.Fatalf("AbandonOrphans error: %v", err)
	}
	if swept != 2 {
		t.Errorf("expected 2 swept, got %d", swept)
	}
	if got := cleaner.Status("sess-a"); got != SessionAbandoned {
		t.Errorf("sess-a: expected abandoned, got %s", got)
	}
	if got := cleaner.Status("sess-c"); got != SessionCompleted {
		t.Errorf("sess-c: expected completed, got %s", got)
	}
	if got := cleaner.Status("sess-d"); got != SessionInProgress {
		t.Errorf("sess-d: other run must not be touched, got %s", got)
	}

	// Idempotent: nothing left to sweep.
	swept, err = cleaner.AbandonOrphans(ctx, "run-1")
	if err != nil {
		t.Fatalf("second AbandonOrphans error: %v", err)
	}
	if swept != 0 {
		t.Errorf("expected 0 swept on second pass, got %d", swept)
	}
}

func TestCycleStatsStoreInsertBulk(t *testing.T) {
	ctx := context.Background()
	store := NewCycleStatsStore()

	rows := []*domain.CycleStatsRow{
		{RunID: "run-1", CycleIndex: 1, Dispatched: 10, Completed: 8},
		{RunID: "run-1", CycleIndex: 2, Dispatched: 12, Completed: 11},
	}
	if err := store.InsertBulk(ctx, rows); err != nil {
		t.Fatalf("InsertBulk error: %v", err)
	}

	all := store.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(all))
	}
	if all[1].CycleIndex != 2 || all[1].Completed != 11 {
		t.Errorf("unexpected second row: %+v", all[1])
	}

	if err := store.InsertBulk(ctx, []*domain.CycleStatsRow{nil}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for nil row, got %v", err)
	}
}
