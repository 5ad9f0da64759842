package stores

import (
	"context"
	"testing"
	"time"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

func testRun(id string) *Run {
	now := time.Now()
	return &Run{
		ID:            id,
		RecipeID:      "add-linting",
		WorkspaceRoot: "/ws",
		Status:        RunStatusRunning,
		TotalTargets:  2,
		StartedAt:     now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestRunLifecycle tests creating, finishing, and fetching a run
func TestRunLifecycle(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.CreateRun(ctx, testRun("run-1")); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	if err := store.FinishRun(ctx, "run-1", RunStatusPartial, 1, 1, 2.5, nil); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	run, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != RunStatusPartial || run.SucceededCount != 1 || run.FailedCount != 1 {
		t.Errorf("unexpected run record: %+v", run)
	}
	if run.CostUnits != 2.5 {
		t.Errorf("cost units = %v, want 2.5", run.CostUnits)
	}
	if run.CompletedAt == nil {
		t.Error("finished run should carry a completion time")
	}
}

// TestFinishUnknownRun tests the missing-run error
func TestFinishUnknownRun(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	if err := store.FinishRun(context.Background(), "absent", RunStatusCompleted, 0, 0, 0, nil); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

// TestListRunsFiltered tests pagination and the recipe filter
func TestListRunsFiltered(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	first := testRun("run-1")
	first.StartedAt = time.Now().Add(-time.Hour)
	if err := store.CreateRun(ctx, first); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	second := testRun("run-2")
	second.RecipeID = "add-ci"
	if err := store.CreateRun(ctx, second); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	runs, err := store.ListRuns(ctx, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-2" {
		t.Errorf("expected newest-first listing, got %+v", runs)
	}

	recipeID := "add-ci"
	runs, err = store.ListRuns(ctx, &recipeID, 10, 0)
	if err != nil {
		t.Fatalf("failed to list filtered runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RecipeID != "add-ci" {
		t.Errorf("filter did not apply: %+v", runs)
	}
}

// TestTargetResults tests per-run result recording and retrieval
func TestTargetResults(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.CreateRun(ctx, testRun("run-1")); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	now := time.Now()
	projectPath := "services/api"
	errMsg := "patch rejected"
	results := []*TargetResult{
		{
			ID: "tr-1", RunID: "run-1", RecipeID: "add-linting", Scope: "workspace",
			Success: true, CostUnits: 1, StartedAt: now.Add(-time.Minute), CreatedAt: now,
		},
		{
			ID: "tr-2", RunID: "run-1", RecipeID: "add-linting", Scope: "project",
			ProjectPath: &projectPath, Success: false, Error: &errMsg,
			CostUnits: 1, StartedAt: now, CreatedAt: now,
		},
	}
	for _, r := range results {
		if err := store.CreateTargetResult(ctx, r); err != nil {
			t.Fatalf("failed to create target result: %v", err)
		}
	}

	got, err := store.ListTargetResultsByRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to list target results: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].ID != "tr-1" || !got[0].Success {
		t.Errorf("unexpected first result: %+v", got[0])
	}
	if got[1].ProjectPath == nil || *got[1].ProjectPath != projectPath {
		t.Errorf("project path not preserved: %+v", got[1])
	}
	if got[1].Error == nil || *got[1].Error != errMsg {
		t.Errorf("error not preserved: %+v", got[1])
	}
}

// TestEvents tests the append-only event log
func TestEvents(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.CreateRun(ctx, testRun("run-1")); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	runID := "run-1"
	event := &Event{
		RunID:     &runID,
		Level:     EventLevelInfo,
		Message:   "target started",
		Timestamp: time.Now(),
	}
	if err := store.AppendEvent(ctx, event); err != nil {
		t.Fatalf("failed to append event: %v", err)
	}
	if event.ID == 0 {
		t.Error("append should backfill the event id")
	}

	events, err := store.GetEvents(ctx, &runID, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 1 || events[0].Message != "target started" {
		t.Errorf("unexpected events: %+v", events)
	}
}

// TestSetRunTargets tests the post-resolution target count update
func TestSetRunTargets(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	run := testRun("run-1")
	run.TotalTargets = 0
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	if err := store.SetRunTargets(ctx, "run-1", 3); err != nil {
		t.Fatalf("failed to set run targets: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.TotalTargets != 3 {
		t.Errorf("total targets = %d, want 3", got.TotalTargets)
	}

	if err := store.SetRunTargets(ctx, "absent", 1); err == nil {
		t.Error("expected error for unknown run")
	}
}

// TestPruneRuns tests that pruning keeps the newest runs and removes
// the pruned runs' results and events with them
func TestPruneRuns(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	now := time.Now()
	for i, id := range []string{"run-1", "run-2", "run-3"} {
		run := testRun(id)
		run.StartedAt = now.Add(time.Duration(i) * time.Hour)
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
	}

	oldID := "run-1"
	if err := store.CreateTargetResult(ctx, &TargetResult{
		ID: "tr-1", RunID: oldID, RecipeID: "add-linting", Scope: "workspace",
		Success: true, StartedAt: now, CreatedAt: now,
	}); err != nil {
		t.Fatalf("failed to create target result: %v", err)
	}
	if err := store.AppendEvent(ctx, &Event{
		RunID: &oldID, Level: EventLevelInfo, Message: "target started", Timestamp: now,
	}); err != nil {
		t.Fatalf("failed to append event: %v", err)
	}

	removed, err := store.PruneRuns(ctx, 1)
	if err != nil {
		t.Fatalf("failed to prune runs: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	runs, err := store.ListRuns(ctx, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-3" {
		t.Errorf("expected only the newest run to survive, got %+v", runs)
	}

	results, err := store.ListTargetResultsByRun(ctx, oldID)
	if err != nil {
		t.Fatalf("failed to list target results: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("pruned run's target results should be gone, got %d", len(results))
	}
	events, err := store.GetEvents(ctx, &oldID, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("pruned run's events should be gone, got %d", len(events))
	}
}
