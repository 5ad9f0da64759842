package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/recipeforge/recipeforge/pkg/executor"
	"github.com/recipeforge/recipeforge/pkg/recipe"
	"github.com/recipeforge/recipeforge/pkg/state"
	"github.com/recipeforge/recipeforge/pkg/stores"
	"github.com/recipeforge/recipeforge/pkg/workspace"
)

// stubAnalyzer serves a fixed snapshot without touching the filesystem.
type stubAnalyzer struct {
	snap *workspace.Snapshot
	err  error
}

func (s *stubAnalyzer) EnsureSnapshot(_ context.Context) (*workspace.Snapshot, error) {
	return s.snap, s.err
}

// scriptedExecutor records requests and fails targets on demand. Keys
// are project paths, "" for the workspace target.
type scriptedExecutor struct {
	failTargets map[string]string
	facts       map[string]interface{}
	requests    []executor.Request
}

func (e *scriptedExecutor) Execute(_ context.Context, req *executor.Request) (*executor.Outcome, error) {
	e.requests = append(e.requests, *req)
	if reason, ok := e.failTargets[req.ProjectPath]; ok {
		return &executor.Outcome{Success: false, Error: reason, CostUnits: 1}, nil
	}
	return &executor.Outcome{Success: true, Output: "done", CostUnits: 1, Facts: e.facts}, nil
}

func newTestOrchestrator(t *testing.T, exec executor.Executor, opts ...Option) (*Orchestrator, *state.Store, *workspace.Snapshot) {
	t.Helper()
	root := t.TempDir()
	snap := testSnapshot()
	snap.Root = root
	store := state.NewStore(root)
	return NewOrchestrator(&stubAnalyzer{snap: snap}, store, exec, opts...), store, snap
}

func newHistoryStore(t *testing.T) stores.Store {
	t.Helper()
	history, err := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create history store: %v", err)
	}
	ctx := context.Background()
	if err := history.Init(ctx); err != nil {
		t.Fatalf("failed to initialize history store: %v", err)
	}
	if err := history.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate history store: %v", err)
	}
	t.Cleanup(func() { history.Close() })
	return history
}

// TestApplyRecordsStateIncrementally tests the success path: every
// succeeded target gets its marker and facts in the matching bucket.
func TestApplyRecordsStateIncrementally(t *testing.T) {
	exec := &scriptedExecutor{}
	orch, store, _ := newTestOrchestrator(t, exec)

	rec := agnosticRecipe(recipe.LevelWorkspacePreferred)
	rec.Provides = []string{"editorconfig.present"}

	report, err := orch.Apply(context.Background(), rec, ApplyOptions{})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	// Workspace target plus the python project.
	if report.Summary.TotalTargets != 2 || report.Summary.SuccessfulTargets != 2 {
		t.Fatalf("unexpected summary: %+v", report.Summary)
	}
	if len(exec.requests) != 2 {
		t.Fatalf("expected 2 executions, got %d", len(exec.requests))
	}

	st, err := store.Read()
	if err != nil {
		t.Fatalf("state read failed: %v", err)
	}
	if !st.IsApplied("add-editorconfig", "") {
		t.Error("workspace marker not recorded")
	}
	if !st.IsApplied("add-editorconfig", "tools/scripts") {
		t.Error("project marker not recorded")
	}
	if v, ok := st.Workspace["editorconfig.present"]; !ok || state.ValueString(v) != "true" {
		t.Errorf("provides fact not recorded: (%v, %v)", v, ok)
	}
}

// TestApplyIdempotencyGuard tests that a second run is refused and a
// bypassed one executes again.
func TestApplyIdempotencyGuard(t *testing.T) {
	exec := &scriptedExecutor{}
	orch, _, _ := newTestOrchestrator(t, exec)
	rec := agnosticRecipe(recipe.LevelWorkspacePreferred)

	if _, err := orch.Apply(context.Background(), rec, ApplyOptions{}); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	firstRunCalls := len(exec.requests)

	_, err := orch.Apply(context.Background(), rec, ApplyOptions{})
	if code := codeOf(t, err); code != CodeUserCancelledReapplication {
		t.Fatalf("error code = %q, want %q", code, CodeUserCancelledReapplication)
	}
	if len(exec.requests) != firstRunCalls {
		t.Error("refused run must not execute any target")
	}

	if _, err := orch.Apply(context.Background(), rec, ApplyOptions{Yes: true}); err != nil {
		t.Fatalf("bypassed apply failed: %v", err)
	}
	if len(exec.requests) <= firstRunCalls {
		t.Error("bypassed run should execute targets again")
	}
}

// TestApplyTargetIsolation tests that one failing target neither aborts
// the run nor corrupts sibling state.
func TestApplyTargetIsolation(t *testing.T) {
	exec := &scriptedExecutor{failTargets: map[string]string{"services/api": "patch rejected"}}
	orch, store, _ := newTestOrchestrator(t, exec)

	rec := jsRecipe(recipe.LevelProjectOnly)
	report, err := orch.Apply(context.Background(), rec, ApplyOptions{})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if report.Summary.TotalTargets != 2 ||
		report.Summary.SuccessfulTargets != 1 ||
		report.Summary.FailedTargets != 1 {
		t.Fatalf("summary does not conserve targets: %+v", report.Summary)
	}
	if report.Summary.SuccessfulTargets+report.Summary.FailedTargets+report.Summary.SkippedTargets != report.Summary.TotalTargets {
		t.Error("successes, failures, and skips must equal total")
	}

	st, err := store.Read()
	if err != nil {
		t.Fatalf("state read failed: %v", err)
	}
	if st.IsApplied("add-linting", "services/api") {
		t.Error("failed target must not be marked applied")
	}
	if !st.IsApplied("add-linting", "services/web") {
		t.Error("succeeded target must be marked applied despite a sibling failure")
	}
}

// TestApplyDryRunSkipsStateRecording tests that dry runs leave no state
func TestApplyDryRunSkipsStateRecording(t *testing.T) {
	orch, store, _ := newTestOrchestrator(t, &executor.DryRunExecutor{})
	rec := agnosticRecipe(recipe.LevelWorkspacePreferred)

	report, err := orch.Apply(context.Background(), rec, ApplyOptions{DryRun: true})
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if report.Summary.SuccessfulTargets != report.Summary.TotalTargets {
		t.Errorf("dry run targets should all succeed: %+v", report.Summary)
	}

	st, err := store.Read()
	if err != nil {
		t.Fatalf("state read failed: %v", err)
	}
	if len(st.Workspace) != 0 || len(st.Projects) != 0 {
		t.Errorf("dry run must not record state, got %+v", st)
	}
}

// TestApplyInvalidRecipe tests the validation gate
func TestApplyInvalidRecipe(t *testing.T) {
	exec := &scriptedExecutor{}
	orch, _, _ := newTestOrchestrator(t, exec)

	rec := agnosticRecipe(recipe.LevelWorkspacePreferred)
	rec.ID = ""

	_, err := orch.Apply(context.Background(), rec, ApplyOptions{})
	if code := codeOf(t, err); code != CodeRecipeInvalid {
		t.Fatalf("error code = %q, want %q", code, CodeRecipeInvalid)
	}
	if len(exec.requests) != 0 {
		t.Error("invalid recipe must not execute")
	}
}

// TestApplyCorruptStateAborts tests that unparsable state is a hard stop
func TestApplyCorruptStateAborts(t *testing.T) {
	exec := &scriptedExecutor{}
	orch, store, _ := newTestOrchestrator(t, exec)

	if err := os.MkdirAll(filepath.Dir(store.Path()), 0o755); err != nil {
		t.Fatalf("failed to create state dir: %v", err)
	}
	if err := os.WriteFile(store.Path(), []byte("][ not json"), 0o644); err != nil {
		t.Fatalf("failed to corrupt state: %v", err)
	}

	_, err := orch.Apply(context.Background(), agnosticRecipe(recipe.LevelWorkspacePreferred), ApplyOptions{})
	if code := codeOf(t, err); code != CodeStateReadFailed {
		t.Fatalf("error code = %q, want %q", code, CodeStateReadFailed)
	}
	var readErr *state.ReadError
	if !errors.As(err, &readErr) {
		t.Error("the underlying read error should be preserved in the chain")
	}
	if len(exec.requests) != 0 {
		t.Error("corrupt state must stop the run before any execution")
	}
}

// TestApplyDefersProjectRequirementsToScope tests that the run-level
// dependency gate does not reject project-level requirements it cannot
// evaluate; scope resolution judges them per project.
func TestApplyDefersProjectRequirementsToScope(t *testing.T) {
	exec := &scriptedExecutor{}
	orch, _, _ := newTestOrchestrator(t, exec)

	rec := jsRecipe(recipe.LevelProjectOnly)
	rec.Requires = []recipe.Requirement{req("project.framework", "react")}

	report, err := orch.Apply(context.Background(), rec, ApplyOptions{})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if len(report.Targets) != 1 || report.Targets[0].ProjectPath != "services/web" {
		t.Fatalf("expected only the react project, got %+v", report.Targets)
	}
}

// TestApplyRecordsExecutorFacts tests that facts reported by the
// execution step land in the target's bucket.
func TestApplyRecordsExecutorFacts(t *testing.T) {
	exec := &scriptedExecutor{facts: map[string]interface{}{"linting.tool": "eslint"}}
	orch, store, _ := newTestOrchestrator(t, exec)

	rec := jsRecipe(recipe.LevelProjectOnly)
	if _, err := orch.Apply(context.Background(), rec, ApplyOptions{ProjectFilter: "services/api"}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	st, err := store.Read()
	if err != nil {
		t.Fatalf("state read failed: %v", err)
	}
	if v, ok := st.Lookup("linting.tool", "services/api"); !ok || state.ValueString(v) != "eslint" {
		t.Errorf("executor fact not recorded: (%v, %v)", v, ok)
	}
}

// TestApplyVariantFailureIsTargetLevel tests that a bad variant request
// is recorded against targets without aborting the run.
func TestApplyVariantFailureIsTargetLevel(t *testing.T) {
	exec := &scriptedExecutor{}
	orch, _, _ := newTestOrchestrator(t, exec)

	rec := jsRecipe(recipe.LevelProjectOnly)
	report, err := orch.Apply(context.Background(), rec, ApplyOptions{Variant: "prettier"})
	if err != nil {
		t.Fatalf("variant failures must not abort the run: %v", err)
	}
	if report.Summary.FailedTargets != report.Summary.TotalTargets {
		t.Errorf("all targets should fail on the missing variant: %+v", report.Summary)
	}
	if len(exec.requests) != 0 {
		t.Error("content failures must not reach the executor")
	}
}

// TestApplyEmitsProgressEvents tests the structured progress stream
func TestApplyEmitsProgressEvents(t *testing.T) {
	events := make(chan ProgressEvent, 64)
	orch, _, _ := newTestOrchestrator(t, &scriptedExecutor{}, WithEvents(events))

	if _, err := orch.Apply(context.Background(), agnosticRecipe(recipe.LevelWorkspacePreferred), ApplyOptions{}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	close(events)

	var types []ProgressEventType
	for event := range events {
		types = append(types, event.Type)
	}

	if len(types) == 0 || types[0] != EventRunStarted {
		t.Fatalf("stream should open with run_started, got %v", types)
	}
	if types[len(types)-1] != EventRunCompleted {
		t.Errorf("stream should close with run_completed, got %v", types)
	}
	var completed int
	for _, typ := range types {
		if typ == EventTargetCompleted {
			completed++
		}
	}
	if completed != 2 {
		t.Errorf("expected 2 target completions, got %d in %v", completed, types)
	}
}

// TestApplyRecordsRunHistory tests that runs, target results, and the
// event log land in the history store.
func TestApplyRecordsRunHistory(t *testing.T) {
	history := newHistoryStore(t)
	orch, _, _ := newTestOrchestrator(t, &scriptedExecutor{}, WithHistory(history))
	ctx := context.Background()

	report, err := orch.Apply(ctx, agnosticRecipe(recipe.LevelWorkspacePreferred), ApplyOptions{})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	run, err := history.GetRun(ctx, report.RunID)
	if err != nil {
		t.Fatalf("run not recorded: %v", err)
	}
	if run.Status != stores.RunStatusCompleted || run.TotalTargets != 2 || run.SucceededCount != 2 {
		t.Errorf("unexpected run record: %+v", run)
	}

	results, err := history.ListTargetResultsByRun(ctx, report.RunID)
	if err != nil {
		t.Fatalf("failed to list target results: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 target results, got %d", len(results))
	}

	events, err := history.GetEvents(ctx, &report.RunID, nil, 100, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("expected events in the run log")
	}
	if !strings.Contains(events[0].Message, string(EventRunStarted)) {
		t.Errorf("log should open with the run start, got %q", events[0].Message)
	}
	if !strings.Contains(events[len(events)-1].Message, string(EventRunCompleted)) {
		t.Errorf("log should close with the run completion, got %q", events[len(events)-1].Message)
	}
}

// TestApplyRecordsRefusedRunHistory tests that a run aborted by the
// re-application guard is recorded as failed with its error.
func TestApplyRecordsRefusedRunHistory(t *testing.T) {
	history := newHistoryStore(t)
	orch, _, _ := newTestOrchestrator(t, &scriptedExecutor{}, WithHistory(history))
	ctx := context.Background()
	rec := agnosticRecipe(recipe.LevelWorkspacePreferred)

	if _, err := orch.Apply(ctx, rec, ApplyOptions{}); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	if _, err := orch.Apply(ctx, rec, ApplyOptions{}); err == nil {
		t.Fatal("second apply should be refused")
	}

	runs, err := history.ListRuns(ctx, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 recorded runs, got %d", len(runs))
	}
	var failed *stores.Run
	for _, run := range runs {
		if run.Status == stores.RunStatusFailed {
			failed = run
		}
	}
	if failed == nil {
		t.Fatal("refused run should be recorded as failed")
	}
	if failed.Error == nil || !strings.Contains(*failed.Error, "already applied") {
		t.Errorf("refused run should carry the guard error, got %+v", failed.Error)
	}
}

// cancellingExecutor cancels the run context after its first execution.
type cancellingExecutor struct {
	cancel context.CancelFunc
	calls  int
}

func (e *cancellingExecutor) Execute(_ context.Context, _ *executor.Request) (*executor.Outcome, error) {
	e.calls++
	e.cancel()
	return &executor.Outcome{Success: true, Output: "done", CostUnits: 1}, nil
}

// TestApplyInterruptReportsSkippedTargets tests that targets never
// attempted after a cancellation are reported as skipped, not failed.
func TestApplyInterruptReportsSkippedTargets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec := &cancellingExecutor{cancel: cancel}
	orch, store, _ := newTestOrchestrator(t, exec)

	// Two javascript projects; the interrupt lands between them.
	rec := jsRecipe(recipe.LevelProjectOnly)
	report, err := orch.Apply(ctx, rec, ApplyOptions{})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if exec.calls != 1 {
		t.Fatalf("expected 1 execution before the interrupt, got %d", exec.calls)
	}
	if report.Summary.TotalTargets != 2 ||
		report.Summary.SuccessfulTargets != 1 ||
		report.Summary.FailedTargets != 0 ||
		report.Summary.SkippedTargets != 1 {
		t.Fatalf("unexpected summary: %+v", report.Summary)
	}
	if len(report.Results) != 1 {
		t.Fatalf("expected 1 result for the attempted target, got %d", len(report.Results))
	}

	st, err := store.Read()
	if err != nil {
		t.Fatalf("state read failed: %v", err)
	}
	if !st.IsApplied("add-linting", report.Results[0].Target.ProjectPath) {
		t.Error("the target completed before the interrupt must stay marked applied")
	}
}
