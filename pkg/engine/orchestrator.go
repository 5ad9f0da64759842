package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/recipeforge/recipeforge/pkg/executor"
	"github.com/recipeforge/recipeforge/pkg/recipe"
	"github.com/recipeforge/recipeforge/pkg/state"
	"github.com/recipeforge/recipeforge/pkg/stores"
	"github.com/recipeforge/recipeforge/pkg/telemetry"
	"github.com/recipeforge/recipeforge/pkg/workspace"
)

// Analyzer supplies the workspace snapshot, regenerating it when the
// persisted artifact is absent or unreadable.
type Analyzer interface {
	EnsureSnapshot(ctx context.Context) (*workspace.Snapshot, error)
}

// Orchestrator sequences the application pipeline: dependency check,
// re-application guard, scope resolution, and one execution per target
// with incremental state recording.
type Orchestrator struct {
	analyzer Analyzer
	states   *state.Store
	executor executor.Executor

	history stores.Store
	metrics *telemetry.Metrics
	events  chan<- ProgressEvent
}

// Option configures optional orchestrator collaborators.
type Option func(*Orchestrator)

// WithHistory records runs, results, and events in the history store.
func WithHistory(history stores.Store) Option {
	return func(o *Orchestrator) { o.history = history }
}

// WithMetrics records run and target metrics.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = metrics }
}

// WithEvents emits structured progress events on the channel. Events
// are dropped rather than blocking the pipeline when the consumer is
// not keeping up.
func WithEvents(events chan<- ProgressEvent) Option {
	return func(o *Orchestrator) { o.events = events }
}

// NewOrchestrator creates an orchestrator with the required
// collaborators.
func NewOrchestrator(analyzer Analyzer, states *state.Store, exec executor.Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		analyzer: analyzer,
		states:   states,
		executor: exec,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ApplyOptions are the caller-supplied knobs for one run.
type ApplyOptions struct {
	// ProjectFilter narrows project targets by exact relative path or
	// substring match.
	ProjectFilter string

	// Variant overrides the content variant for every target.
	Variant string

	// Yes bypasses the re-application confirmation guard.
	Yes bool

	// DryRun skips state recording; combine with a DryRunExecutor to
	// avoid calling the execution service at all.
	DryRun bool
}

// Apply runs the full pipeline for one recipe. Run-level failures are
// returned as *EngineError before any target executes; target-level
// failures are captured in the report so a multi-target run always
// completes with a full picture.
func (o *Orchestrator) Apply(ctx context.Context, rec *recipe.Recipe, opts ApplyOptions) (*RunReport, error) {
	startedAt := time.Now()

	if result := rec.Validate(); !result.Valid {
		return nil, NewRunError(CodeRecipeInvalid,
			fmt.Sprintf("recipe %s failed validation", rec.ID), nil).
			WithDetails(map[string]interface{}{"errors": result.Errors})
	}

	snap, err := o.analyzer.EnsureSnapshot(ctx)
	if err != nil {
		return nil, NewRunError(CodeAnalysisFailed, "workspace analysis failed", err)
	}

	st, err := o.states.Read()
	if err != nil {
		return nil, NewRunError(CodeStateReadFailed, "failed to read workspace state", err)
	}

	runID := uuid.New().String()
	report := &RunReport{RunID: runID, RecipeID: rec.ID}

	log.Info().
		Str("run_id", runID).
		Str("recipe", rec.ID).
		Str("level", string(rec.Level)).
		Str("workspace", snap.Root).
		Msg("Starting recipe application")

	// The run row is created before the first event so every appended
	// event can reference it. Target counts are filled in once scope
	// resolution has produced them.
	o.recordRunStarted(ctx, runID, rec.ID, snap.Root, startedAt)
	o.emit(ctx, ProgressEvent{Type: EventRunStarted, RunID: runID, RecipeID: rec.ID,
		Message: fmt.Sprintf("applying %s", rec.ID), Timestamp: time.Now()})
	if o.metrics != nil {
		o.metrics.RecordRunStarted(rec.ID)
	}

	// Workspace-scope dependency gate. Project-reserved requirements
	// cannot be evaluated at workspace scope and are deferred to
	// per-project evaluation during scope resolution.
	gate := ResolveDependencies(workspaceEvaluable(rec.Requires), snap, st, "")
	report.DependencyCheck = gate
	o.emit(ctx, ProgressEvent{Type: EventDependencyCheck, RunID: runID, RecipeID: rec.ID,
		Message: gate.Describe(), Timestamp: time.Now()})
	if !gate.Satisfied {
		return nil, o.abortRun(ctx, runID, dependenciesError(gate))
	}

	targets, err := ResolveScope(rec, snap, st, opts.ProjectFilter)
	if err != nil {
		return nil, o.abortRun(ctx, runID, err)
	}
	report.Targets = targets
	o.recordRunTargets(ctx, runID, len(targets))
	o.emit(ctx, ProgressEvent{Type: EventScopeResolved, RunID: runID, RecipeID: rec.ID,
		Message: fmt.Sprintf("resolved %d target(s)", len(targets)), Timestamp: time.Now()})

	if err := CheckReapplication(rec.ID, targets, st, opts.Yes); err != nil {
		return nil, o.abortRun(ctx, runID, err)
	}

	for _, target := range targets {
		if ctx.Err() != nil {
			// Interrupted between targets: already-recorded applied
			// markers stay valid; remaining targets are not attempted.
			break
		}
		report.Results = append(report.Results, o.executeTarget(ctx, runID, rec, snap, target, opts))
		result := &report.Results[len(report.Results)-1]

		if !opts.DryRun && result.Success {
			o.recordApplied(rec, target, result)
		}
		o.recordTargetResult(ctx, runID, rec.ID, *result)
	}

	report.Summary = summarize(report.Results, len(targets))
	status := runStatus(report.Summary)

	o.finishRun(ctx, runID, status, report.Summary)
	if o.metrics != nil {
		o.metrics.RecordRunCompleted(rec.ID, string(status), time.Since(startedAt))
	}
	o.emit(ctx, ProgressEvent{Type: EventRunCompleted, RunID: runID, RecipeID: rec.ID,
		Message: fmt.Sprintf("%d/%d targets succeeded", report.Summary.SuccessfulTargets,
			report.Summary.TotalTargets), Timestamp: time.Now()})

	log.Info().
		Str("run_id", runID).
		Str("recipe", rec.ID).
		Int("total", report.Summary.TotalTargets).
		Int("succeeded", report.Summary.SuccessfulTargets).
		Int("failed", report.Summary.FailedTargets).
		Int("skipped", report.Summary.SkippedTargets).
		Float64("cost_units", report.Summary.CostUnits).
		Dur("duration", time.Since(startedAt)).
		Msg("Recipe application completed")

	return report, nil
}

// executeTarget resolves content for one target and delegates to the
// execution collaborator. All failures are target-level: they are
// captured in the result and never abort the run.
func (o *Orchestrator) executeTarget(
	ctx context.Context,
	runID string,
	rec *recipe.Recipe,
	snap *workspace.Snapshot,
	target ApplicationTarget,
	opts ApplyOptions,
) ExecutionResult {
	result := ExecutionResult{
		Target:    target,
		RecipeID:  rec.ID,
		StartedAt: time.Now(),
	}

	o.emit(ctx, ProgressEvent{Type: EventTargetStarted, RunID: runID, RecipeID: rec.ID,
		Target: &target, Message: "executing " + target.Describe(), Timestamp: time.Now()})

	content, err := ResolveContent(rec, target.Ecosystem, opts.Variant)
	if err != nil {
		result.Error = err.Error()
		result.CompletedAt = time.Now()
		o.observeTarget(ctx, runID, rec.ID, &result)
		return result
	}
	result.VariantID = content.VariantID

	req := &executor.Request{
		RecipeID:      rec.ID,
		Summary:       rec.Summary,
		Content:       content.Content,
		Scope:         string(target.Scope),
		ProjectPath:   target.ProjectPath,
		WorkspaceRoot: snap.Root,
		VariantID:     content.VariantID,
		IsMonorepo:    snap.IsMonorepo,
	}

	outcome, err := o.executor.Execute(ctx, req)
	result.CompletedAt = time.Now()

	switch {
	case err != nil:
		result.Error = NewTargetError(CodeExecutionFailed, "execution service error", err).Error()
	case !outcome.Success:
		result.Error = outcome.Error
		result.Output = outcome.Output
		result.CostUnits = outcome.CostUnits
	default:
		result.Success = true
		result.Output = outcome.Output
		result.CostUnits = outcome.CostUnits
		result.Facts = outcome.Facts
	}

	o.observeTarget(ctx, runID, rec.ID, &result)
	return result
}

// recordApplied persists the applied marker and facts for a successful
// target before the next target executes, so an interrupted run leaves
// completed targets durably marked. A write failure downgrades the
// target to failed: without the marker, idempotency for future runs
// cannot be promised.
func (o *Orchestrator) recordApplied(rec *recipe.Recipe, target ApplicationTarget, result *ExecutionResult) {
	facts := make(map[string]interface{}, len(rec.Provides)+len(result.Facts))
	for _, key := range rec.Provides {
		facts[key] = true
	}
	// Facts reported by the execution step override the declared ones.
	for key, value := range result.Facts {
		facts[key] = value
	}

	if _, err := o.states.RecordApplied(rec.ID, target.ProjectPath, facts); err != nil {
		log.Error().Err(err).
			Str("recipe", rec.ID).
			Str("target", target.Describe()).
			Msg("Failed to record applied state")
		result.Success = false
		result.Error = fmt.Sprintf("applied but failed to record state: %v", err)
	}
}

func (o *Orchestrator) observeTarget(ctx context.Context, runID, recipeID string, result *ExecutionResult) {
	outcome := "failed"
	eventType := EventTargetFailed
	if result.Success {
		outcome = "succeeded"
		eventType = EventTargetCompleted
	}
	if o.metrics != nil {
		o.metrics.RecordTarget(recipeID, string(result.Target.Scope), outcome,
			result.CompletedAt.Sub(result.StartedAt), result.CostUnits)
	}
	o.emit(ctx, ProgressEvent{Type: eventType, RunID: runID, RecipeID: recipeID,
		Target: &result.Target, Result: result,
		Message: fmt.Sprintf("%s %s", result.Target.Describe(), outcome),
		Timestamp: time.Now()})
}

// emit appends the event to the run history and sends it to the
// consumer without ever blocking the pipeline.
func (o *Orchestrator) emit(ctx context.Context, event ProgressEvent) {
	o.appendEvent(ctx, event)
	if o.events == nil {
		return
	}
	select {
	case o.events <- event:
	default:
		log.Debug().Str("type", string(event.Type)).Msg("Dropped progress event")
	}
}

// appendEvent persists one progress event in the run-history event log.
func (o *Orchestrator) appendEvent(ctx context.Context, event ProgressEvent) {
	if o.history == nil {
		return
	}
	level := stores.EventLevelInfo
	if event.Type == EventTargetFailed {
		level = stores.EventLevelError
	}
	record := &stores.Event{
		RunID:     &event.RunID,
		Level:     level,
		Message:   fmt.Sprintf("%s: %s", event.Type, event.Message),
		Timestamp: event.Timestamp,
	}
	if event.Result != nil && event.Result.Error != "" {
		if details, err := json.Marshal(map[string]string{"error": event.Result.Error}); err == nil {
			blob := string(details)
			record.Details = &blob
		}
	}
	if err := o.history.AppendEvent(ctx, record); err != nil {
		log.Warn().Err(err).Str("run_id", event.RunID).Msg("Failed to append run event")
	}
}

// workspaceEvaluable filters out requirements that can only be judged
// per project.
func workspaceEvaluable(reqs []recipe.Requirement) []recipe.Requirement {
	out := make([]recipe.Requirement, 0, len(reqs))
	for _, req := range reqs {
		if req.Key.Kind == recipe.KeyReservedProject {
			continue
		}
		out = append(out, req)
	}
	return out
}

func summarize(results []ExecutionResult, total int) RunSummary {
	summary := RunSummary{TotalTargets: total}
	for _, r := range results {
		if r.Success {
			summary.SuccessfulTargets++
		} else {
			summary.FailedTargets++
		}
		summary.CostUnits += r.CostUnits
	}
	// Targets never attempted because the run was interrupted. They are
	// reported separately from executed-and-failed targets; successes,
	// failures, and skips together account for every resolved target.
	summary.SkippedTargets = total - len(results)
	return summary
}

func runStatus(summary RunSummary) stores.RunStatus {
	switch {
	case summary.FailedTargets == 0 && summary.SkippedTargets == 0:
		return stores.RunStatusCompleted
	case summary.SuccessfulTargets > 0:
		return stores.RunStatusPartial
	default:
		return stores.RunStatusFailed
	}
}

// History recording is best effort: the run history is an audit
// surface, never a correctness dependency.

func (o *Orchestrator) recordRunStarted(ctx context.Context, runID, recipeID, root string, startedAt time.Time) {
	if o.history == nil {
		return
	}
	now := time.Now()
	err := o.history.CreateRun(ctx, &stores.Run{
		ID:            runID,
		RecipeID:      recipeID,
		WorkspaceRoot: root,
		Status:        stores.RunStatusRunning,
		StartedAt:     startedAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		log.Warn().Err(err).Str("run_id", runID).Msg("Failed to record run start")
	}
}

func (o *Orchestrator) recordRunTargets(ctx context.Context, runID string, total int) {
	if o.history == nil {
		return
	}
	if err := o.history.SetRunTargets(ctx, runID, total); err != nil {
		log.Warn().Err(err).Str("run_id", runID).Msg("Failed to record run target count")
	}
}

// abortRun marks the history row for a run-level failure and returns
// the error unchanged.
func (o *Orchestrator) abortRun(ctx context.Context, runID string, cause error) error {
	if o.history == nil {
		return cause
	}
	msg := cause.Error()
	err := o.history.AppendEvent(ctx, &stores.Event{
		RunID:     &runID,
		Level:     stores.EventLevelError,
		Message:   msg,
		Timestamp: time.Now(),
	})
	if err != nil {
		log.Warn().Err(err).Str("run_id", runID).Msg("Failed to append run event")
	}
	if err := o.history.FinishRun(ctx, runID, stores.RunStatusFailed, 0, 0, 0, &msg); err != nil {
		log.Warn().Err(err).Str("run_id", runID).Msg("Failed to record run abort")
	}
	return cause
}

func (o *Orchestrator) recordTargetResult(ctx context.Context, runID, recipeID string, result ExecutionResult) {
	if o.history == nil {
		return
	}
	record := &stores.TargetResult{
		ID:        uuid.New().String(),
		RunID:     runID,
		RecipeID:  recipeID,
		Scope:     string(result.Target.Scope),
		Success:   result.Success,
		CostUnits: result.CostUnits,
		StartedAt: result.StartedAt,
		CreatedAt: time.Now(),
	}
	if result.Target.ProjectPath != "" {
		record.ProjectPath = &result.Target.ProjectPath
	}
	if result.VariantID != "" {
		record.VariantID = &result.VariantID
	}
	if result.Output != "" {
		record.Output = &result.Output
	}
	if result.Error != "" {
		record.Error = &result.Error
	}
	if !result.CompletedAt.IsZero() {
		completed := result.CompletedAt
		record.CompletedAt = &completed
	}
	if err := o.history.CreateTargetResult(ctx, record); err != nil {
		log.Warn().Err(err).Str("run_id", runID).Msg("Failed to record target result")
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, runID string, status stores.RunStatus, summary RunSummary) {
	if o.history == nil {
		return
	}
	// The history schema tracks succeeded and failed only; targets
	// skipped by an interrupt count as failed there.
	err := o.history.FinishRun(ctx, runID, status,
		summary.SuccessfulTargets, summary.FailedTargets+summary.SkippedTargets,
		summary.CostUnits, nil)
	if err != nil {
		log.Warn().Err(err).Str("run_id", runID).Msg("Failed to record run completion")
	}
}
