package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"cartstorm/internal/domain"
)

func makeCheckpoint(cycle int64) *domain.Checkpoint {
	stats := domain.NewAggregateStats()
	stats.CyclesCompleted = cycle
	stats.Successes = cycle * 3
	stats.FailuresByKind[domain.ErrorKindRejected] = 2

	return &domain.Checkpoint{
		RunID:         "run-abc",
		SavedAtMs:     1700000000000 + cycle,
		CycleIndex:    cycle,
		SimulatedAtMs: 1000000 + cycle*60000,
		Stats:         stats,
		Agents: map[string]*domain.AgentRuntimeState{
			"agent-1": {AgentID: "agent-1", LastCycleCompleted: cycle, LastAction: domain.TerminalCheckoutComplete},
			"agent-2": {AgentID: "agent-2", LastCycleCompleted: cycle, LastAction: domain.TerminalSkipped, ConsecutiveFailures: 1},
		},
	}
}

func newTestStore(t *testing.T, interval int64, keep int) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), interval, keep, nil)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s
}

func TestStore_ShouldCheckpoint(t *testing.T) {
	s := newTestStore(t, 10, 5)

	cases := []struct {
		cycle int64
		want  bool
	}{
		{0, false},
		{1, false},
		{9, false},
		{10, true},
		{15, false},
		{20, true},
	}
	for _, tc := range cases {
		if got := s.ShouldCheckpoint(tc.cycle); got != tc.want {
			t.Errorf("ShouldCheckpoint(%d) = %v, want %v", tc.cycle, got, tc.want)
		}
	}
}

func TestStore_SaveAndLoadLatest(t *testing.T) {
	s := newTestStore(t, 10, 5)

	if _, err := s.LoadLatest(); !errors.Is(err, ErrNoCheckpoint) {
		t.Fatalf("LoadLatest on empty dir = %v, want ErrNoCheckpoint", err)
	}

	want := makeCheckpoint(10)
	if err := s.Save(want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round-trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

// Restoring from one checkpoint twice must yield identical state.
func TestStore_IdempotentRestore(t *testing.T) {
	s := newTestStore(t, 10, 5)
	if err := s.Save(makeCheckpoint(30)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	first, err := s.LoadLatest()
	if err != nil {
		t.Fatalf("first LoadLatest failed: %v", err)
	}
	second, err := s.LoadLatest()
	if err != nil {
		t.Fatalf("second LoadLatest failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("two restores from the same checkpoint differ")
	}
	if first.CycleIndex != 30 {
		t.Errorf("restored cycle = %d, want 30", first.CycleIndex)
	}
}

// Interval 10, retention 5: after 60 cycles exactly 5 checkpoints
// remain, newest for cycle 60.
func TestStore_PruneRetention(t *testing.T) {
	s := newTestStore(t, 10, 5)

	for cycle := int64(1); cycle <= 60; cycle++ {
		if !s.ShouldCheckpoint(cycle) {
			continue
		}
		if err := s.Save(makeCheckpoint(cycle)); err != nil {
			t.Fatalf("Save at cycle %d failed: %v", cycle, err)
		}
	}

	files, err := s.list()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(files) != 5 {
		t.Fatalf("%d checkpoints remain, want 5: %v", len(files), files)
	}

	latest, err := s.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if latest.CycleIndex != 60 {
		t.Errorf("newest checkpoint cycle = %d, want 60", latest.CycleIndex)
	}
	oldest, err := s.load(files[0])
	if err != nil {
		t.Fatalf("load oldest failed: %v", err)
	}
	if oldest.CycleIndex != 20 {
		t.Errorf("oldest surviving cycle = %d, want 20", oldest.CycleIndex)
	}
}

func TestStore_NoTempFilesVisible(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, 1, 3, nil)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	for cycle := int64(1); cycle <= 5; cycle++ {
		if err := s.Save(makeCheckpoint(cycle)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), tmpSuffix) {
			t.Errorf("temp file %s left behind", entry.Name())
		}
	}
}

// A corrupt newest file must not prevent restore from the previous one.
func TestStore_CorruptLatestFallsBack(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, 1, 5, nil)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if err := s.Save(makeCheckpoint(1)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Save(makeCheckpoint(2)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	corrupt := filepath.Join(dir, "checkpoint-0000000002.json")
	if err := os.WriteFile(corrupt, []byte("{truncated"), 0o644); err != nil {
		t.Fatalf("corrupt write failed: %v", err)
	}

	got, err := s.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if got.CycleIndex != 1 {
		t.Errorf("fallback cycle = %d, want 1", got.CycleIndex)
	}
}

func TestStore_SaveEmergencyNeverPanics(t *testing.T) {
	s := newTestStore(t, 10, 5)
	s.SaveEmergency(nil)
	s.SaveEmergency(makeCheckpoint(99))

	got, err := s.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if got.CycleIndex != 99 {
		t.Errorf("emergency checkpoint cycle = %d, want 99", got.CycleIndex)
	}
}
