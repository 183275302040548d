// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package executor implements the S.L.A.P.S. executor: it drives an
// AnnotatedPlan through its state machine, under the serialization lock,
// governor backpressure, idempotency checks and timeout/lock discipline of
// SPEC_FULL.md §4.5.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"drydock/pkg/eventlog"
	"drydock/pkg/governor"
	"drydock/pkg/ledger"
	"drydock/pkg/lock"
	"drydock/pkg/model"
	"drydock/pkg/planstate"
)

// Feature: CORE_EXECUTOR
// Spec: SPEC_FULL.md §4.5, §5

// maxPauseWallClock caps how long the executor will honor repeated
// governor pause directives before escalating to abort.
const maxPauseWallClock = 30 * time.Second

// Options configures one Execute call.
type Options struct {
	// Scope is the serialization-lock key, typically the target database name.
	Scope string
	// Requester is recorded on ledger rows and events.
	Requester string
	// RetryFailed allows re-attempting a step previously recorded as failed.
	RetryFailed bool
	// SettleDelay is observed after each completed wave, before the next
	// wave starts; the governor is sampled again before that wave's first step.
	SettleDelay time.Duration
	// BaseStepDelay is the nominal inter-step sleep before governor slow()
	// multiplies it. Zero means no nominal delay (only slow() pauses apply).
	BaseStepDelay time.Duration
}

// Executor drives annotated plans to completion.
type Executor struct {
	db       Database
	ledger   ledger.Ledger
	events   eventlog.EventLog
	lock     lock.SerializationLock
	governor *governor.Governor
	states   planstate.Store

	abortRequested map[model.PlanID]bool
}

// New constructs an Executor from its collaborators. states may be nil, in
// which case Abort only takes effect when called from the same process
// that is running Execute for that plan.
func New(db Database, led ledger.Ledger, events eventlog.EventLog, serlock lock.SerializationLock, gov *governor.Governor, states planstate.Store) *Executor {
	return &Executor{
		db:             db,
		ledger:         led,
		events:         events,
		lock:           serlock,
		governor:       gov,
		states:         states,
		abortRequested: make(map[model.PlanID]bool),
	}
}

// Abort requests that a running plan stop at the next suspension point.
// Idempotent; aborting a terminal or unknown plan is a no-op. When the
// Executor was built with a planstate.Store, the request is persisted so a
// separate process's Execute call observes it.
func (e *Executor) Abort(ctx context.Context, planID model.PlanID) error {
	e.abortRequested[planID] = true
	if e.states != nil {
		return e.states.RequestAbort(ctx, planID)
	}
	return nil
}

// abortRequestedFor reports whether planID has been aborted, checking both
// this process's in-memory flag and the persisted store.
func (e *Executor) abortRequestedFor(ctx context.Context, planID model.PlanID) bool {
	if e.abortRequested[planID] {
		return true
	}
	if e.states == nil {
		return false
	}
	requested, err := e.states.AbortRequested(ctx, planID)
	return err == nil && requested
}

// Execute drives an AnnotatedPlan through ANNOTATED -> RUNNING ->
// {COMPLETED | FAILED | ABORTED}.
func (e *Executor) Execute(ctx context.Context, plan model.AnnotatedPlan, opts Options) (model.ExecutionResult, error) {
	result := model.ExecutionResult{PlanID: plan.PlanID, State: model.StateAnnotated}

	handle, err := e.lock.TryAcquire(ctx, opts.Scope)
	if err != nil {
		if errors.Is(err, lock.ErrUnavailable) {
			result.State = model.StateFailed
			result.FirstFailure = &model.StepFailure{Kind: model.ErrLockUnavailable, Message: "serialization lock held by another executor"}
			return result, nil
		}
		return result, fmt.Errorf("acquiring serialization lock: %w", err)
	}
	defer func() { _ = handle.Release(ctx) }()

	result.State = model.StateRunning
	e.touchState(ctx, plan.PlanID, model.StateRunning)
	e.emit(ctx, plan.PlanID, model.EventPlanStart, "", "", nil)

	for _, wave := range plan.Waves {
		e.emit(ctx, plan.PlanID, model.EventWaveStart, wave.Name, "", nil)

		waveOK, terminal, failure := e.runWave(ctx, plan, wave, opts, &result)
		if !waveOK {
			result.State = terminal
			result.FirstFailure = failure
			if terminal == model.StateAborted {
				e.emit(ctx, plan.PlanID, model.EventWaveFail, wave.Name, "", map[string]any{"reason": "aborted"})
				e.emit(ctx, plan.PlanID, model.EventPlanAbort, "", "", nil)
			} else {
				e.emit(ctx, plan.PlanID, model.EventWaveFail, wave.Name, failure.StepSHA, map[string]any{"kind": failure.Kind})
				e.emit(ctx, plan.PlanID, model.EventPlanFail, "", failure.StepSHA, map[string]any{"kind": failure.Kind})
			}
			e.touchState(ctx, plan.PlanID, terminal)
			return result, nil
		}

		e.emit(ctx, plan.PlanID, model.EventWaveOK, wave.Name, "", nil)
		result.WavesCompleted++

		if opts.SettleDelay > 0 {
			select {
			case <-time.After(opts.SettleDelay):
			case <-ctx.Done():
				result.State = model.StateAborted
				return result, nil
			}
		}
	}

	result.State = model.StateCompleted
	e.touchState(ctx, plan.PlanID, model.StateCompleted)
	e.emit(ctx, plan.PlanID, model.EventPlanOK, "", "", nil)
	return result, nil
}

// touchState persists a plan's lifecycle transition when a planstate.Store
// is configured; it is a no-op otherwise.
func (e *Executor) touchState(ctx context.Context, planID model.PlanID, state model.PlanState) {
	if e.states == nil {
		return
	}
	if state.Terminal() {
		_ = e.states.Terminate(ctx, planID, state)
		return
	}
	_ = e.states.Touch(ctx, planID, state)
}

// runWave executes every step of a wave in declared order. It returns
// ok=true if every step applied or was skipped; otherwise it returns the
// terminal state (FAILED or ABORTED) and the first failure.
func (e *Executor) runWave(ctx context.Context, plan model.AnnotatedPlan, wave model.AnnotatedWave, opts Options, result *model.ExecutionResult) (bool, model.PlanState, *model.StepFailure) {
	for _, step := range wave.Steps {
		if e.abortRequestedFor(ctx, plan.PlanID) {
			return false, model.StateAborted, &model.StepFailure{StepSHA: step.StepSHA, WaveName: wave.Name, Kind: model.ErrExternalAbort, Message: "abort requested by operator"}
		}

		directive, err := e.governorGate(ctx, plan.PlanID)
		if err != nil {
			return false, model.StateFailed, &model.StepFailure{StepSHA: step.StepSHA, WaveName: wave.Name, Kind: model.ErrDatabaseError, Message: err.Error()}
		}
		switch directive.Kind {
		case model.DirectiveAbort:
			return false, model.StateAborted, &model.StepFailure{StepSHA: step.StepSHA, WaveName: wave.Name, Kind: model.ErrGovernorAbort, Message: "governor directed abort: " + directive.Reason}
		case model.DirectiveSlow:
			if opts.BaseStepDelay > 0 {
				time.Sleep(time.Duration(float64(opts.BaseStepDelay) * directive.Factor))
			}
		}

		outcome, skip, failure := e.applyStep(ctx, plan, wave, step, opts)
		if failure != nil {
			result.StepsFailed++
			return false, model.StateFailed, failure
		}
		if skip {
			result.StepsSkipped++
			continue
		}
		_ = outcome
		result.StepsApplied++
	}
	return true, model.StateCompleted, nil
}

// governorGate requests a directive and honors pause with a bounded
// backoff; exceeding the cap escalates to abort.
func (e *Executor) governorGate(ctx context.Context, planID model.PlanID) (model.Directive, error) {
	if e.governor == nil {
		return model.Directive{Kind: model.DirectiveProceed}, nil
	}

	waited := time.Duration(0)
	for {
		sample, directive, err := e.governor.Evaluate(ctx)
		if err != nil {
			return model.Directive{}, err
		}
		e.emit(ctx, planID, model.EventGovernorSample, "", "", map[string]any{
			"active_connections": sample.ActiveConnections,
			"error_rate":         sample.RecentErrorRate,
		})
		e.emit(ctx, planID, model.EventGovernorDirective, "", "", map[string]any{"kind": directive.Kind, "reason": directive.Reason})

		if directive.Kind != model.DirectivePause {
			return directive, nil
		}

		if waited >= maxPauseWallClock {
			return model.Directive{Kind: model.DirectiveAbort, Reason: "governor_pause_cap"}, nil
		}

		const step = 1 * time.Second
		select {
		case <-time.After(step):
			waited += step
		case <-ctx.Done():
			return model.Directive{Kind: model.DirectiveAbort, Reason: "context_done"}, nil
		}
	}
}

// applyStep runs the idempotency check and, if needed, applies the step.
// Returns (appliedOutcome, skip, failure).
func (e *Executor) applyStep(ctx context.Context, plan model.AnnotatedPlan, wave model.AnnotatedWave, step model.AnnotatedStep, opts Options) (ledger.Outcome, bool, *model.StepFailure) {
	check, err := e.ledger.Check(ctx, step.StepSHA)
	if err != nil {
		return ledger.Outcome{}, false, &model.StepFailure{StepSHA: step.StepSHA, WaveName: wave.Name, Kind: model.ErrDatabaseError, Message: err.Error()}
	}

	switch check.Status {
	case ledger.Success:
		e.emit(ctx, plan.PlanID, model.EventStepSkip, wave.Name, step.StepSHA, nil)
		return ledger.Outcome{}, true, nil

	case ledger.Failed:
		if !opts.RetryFailed {
			return ledger.Outcome{}, false, &model.StepFailure{StepSHA: step.StepSHA, WaveName: wave.Name, Kind: model.ErrDatabaseError, Message: "step previously recorded as failed; retry_failed is disabled: " + check.ErrorSummary}
		}
		// fall through to re-attempt

	case ledger.Pending:
		// A prior executor crashed mid-step. Reconcile by probing the
		// expected postcondition before deciding whether to finalize
		// success or roll back to failed.
		if err := e.reconcilePending(ctx, step); err != nil {
			return ledger.Outcome{}, false, &model.StepFailure{StepSHA: step.StepSHA, WaveName: wave.Name, Kind: model.ErrDatabaseError, Message: err.Error()}
		}
		return e.applyStep(ctx, plan, wave, step, opts)
	}

	e.emit(ctx, plan.PlanID, model.EventStepStart, wave.Name, step.StepSHA, nil)

	start := time.Now()
	var outcome ledger.Outcome
	var applyErr *model.StepError

	if step.Step.Op.RequiresNonTransactional() {
		outcome, applyErr = e.applyNonTransactional(ctx, plan, wave, step, opts)
	} else {
		outcome, applyErr = e.applyTransactional(ctx, plan, wave, step, opts)
	}
	outcome.ExecutionTimeMS = time.Since(start).Milliseconds()

	if applyErr != nil {
		e.emit(ctx, plan.PlanID, model.EventStepFail, wave.Name, step.StepSHA, map[string]any{"kind": applyErr.Kind, "summary": applyErr.Summary})
		return outcome, false, &model.StepFailure{StepSHA: step.StepSHA, WaveName: wave.Name, Kind: applyErr.Kind, Message: applyErr.Summary}
	}

	e.emit(ctx, plan.PlanID, model.EventStepOK, wave.Name, step.StepSHA, map[string]any{
		"execution_time_ms": outcome.ExecutionTimeMS,
		"rows_affected":     outcome.RowsAffected,
	})
	return outcome, false, nil
}

// applyTransactional runs steps 4a-4d of SPEC_FULL.md §4.5 (timeouts,
// prechecks, statement, postchecks) within a single database transaction.
// The ledger row (4e) is written one-shot via Record after Commit, outside
// that transaction: if Record fails, the statement stays committed with no
// ledger row.
func (e *Executor) applyTransactional(ctx context.Context, plan model.AnnotatedPlan, wave model.AnnotatedWave, step model.AnnotatedStep, opts Options) (ledger.Outcome, *model.StepError) {
	tx, err := e.db.BeginTransactional(ctx)
	if err != nil {
		return ledger.Outcome{}, &model.StepError{Kind: model.ErrDatabaseError, StepSHA: step.StepSHA, WaveName: wave.Name, Summary: model.TruncateSummary(err.Error())}
	}

	if err := tx.SetTimeouts(ctx, step.Obligations.MaxLockMS, step.Obligations.MaxStmtMS); err != nil {
		_ = tx.Rollback(ctx)
		return ledger.Outcome{}, &model.StepError{Kind: model.ErrDatabaseError, StepSHA: step.StepSHA, WaveName: wave.Name, Summary: model.TruncateSummary(err.Error())}
	}

	for _, pre := range step.Obligations.Prechecks {
		ok, err := tx.EvalPredicate(ctx, pre)
		if err != nil {
			_ = tx.Rollback(ctx)
			return ledger.Outcome{}, &model.StepError{Kind: model.ErrDatabaseError, StepSHA: step.StepSHA, WaveName: wave.Name, Summary: model.TruncateSummary(err.Error())}
		}
		if !ok {
			_ = tx.Rollback(ctx)
			return ledger.Outcome{}, &model.StepError{Kind: model.ErrPreconditionFailed, StepSHA: step.StepSHA, WaveName: wave.Name, Summary: "precheck failed"}
		}
	}

	rows, err := tx.Exec(ctx, step.Step.Payload.RenderSQL(step.Step.Op))
	if err != nil {
		_ = tx.Rollback(ctx)
		return ledger.Outcome{}, classifyDBError(step, wave, err)
	}

	for _, post := range step.Obligations.Postchecks {
		ok, err := tx.EvalPredicate(ctx, post)
		if err != nil {
			_ = tx.Rollback(ctx)
			return ledger.Outcome{}, &model.StepError{Kind: model.ErrDatabaseError, StepSHA: step.StepSHA, WaveName: wave.Name, Summary: model.TruncateSummary(err.Error())}
		}
		if !ok {
			_ = tx.Rollback(ctx)
			return ledger.Outcome{}, &model.StepError{Kind: model.ErrPostconditionFailed, StepSHA: step.StepSHA, WaveName: wave.Name, Summary: "postcheck failed"}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return ledger.Outcome{}, &model.StepError{Kind: model.ErrDatabaseError, StepSHA: step.StepSHA, WaveName: wave.Name, Summary: model.TruncateSummary(err.Error())}
	}

	outcome := ledger.Outcome{Status: model.LedgerSuccess, RowsAffected: rows}
	if err := e.ledger.Record(ctx, step.StepSHA, ledger.Meta{PlanID: plan.PlanID, WaveName: wave.Name, AppliedBy: opts.Requester}, outcome); err != nil {
		return outcome, &model.StepError{Kind: model.ErrDatabaseError, StepSHA: step.StepSHA, WaveName: wave.Name, Summary: model.TruncateSummary(err.Error())}
	}
	return outcome, nil
}

// applyNonTransactional implements the two-phase pending/success protocol
// for statements that cannot run inside a transaction (e.g. CREATE INDEX
// CONCURRENTLY): write a pending ledger row before starting, finalize to
// success or failed on completion.
func (e *Executor) applyNonTransactional(ctx context.Context, plan model.AnnotatedPlan, wave model.AnnotatedWave, step model.AnnotatedStep, opts Options) (ledger.Outcome, *model.StepError) {
	meta := ledger.Meta{PlanID: plan.PlanID, WaveName: wave.Name, AppliedBy: opts.Requester}
	if err := e.ledger.Begin(ctx, step.StepSHA, meta); err != nil {
		return ledger.Outcome{}, &model.StepError{Kind: model.ErrDatabaseError, StepSHA: step.StepSHA, WaveName: wave.Name, Summary: model.TruncateSummary(err.Error())}
	}
	e.emit(ctx, plan.PlanID, model.EventLedgerBegin, wave.Name, step.StepSHA, nil)

	for _, pre := range step.Obligations.Prechecks {
		ok, err := e.db.EvalPredicate(ctx, pre)
		if err != nil || !ok {
			outcome := ledger.Outcome{Status: model.LedgerFailed, ErrorSummary: "precheck failed"}
			_ = e.ledger.Finalize(ctx, step.StepSHA, outcome)
			e.emit(ctx, plan.PlanID, model.EventLedgerFinalize, wave.Name, step.StepSHA, map[string]any{"status": outcome.Status})
			return outcome, &model.StepError{Kind: model.ErrPreconditionFailed, StepSHA: step.StepSHA, WaveName: wave.Name, Summary: "precheck failed"}
		}
	}

	rows, err := e.db.ExecNonTransactional(ctx, step.Step.Payload.RenderSQL(step.Step.Op), step.Obligations.MaxLockMS, step.Obligations.MaxStmtMS)
	if err != nil {
		stepErr := classifyDBError(step, wave, err)
		outcome := ledger.Outcome{Status: model.LedgerFailed, ErrorSummary: stepErr.Summary}
		_ = e.ledger.Finalize(ctx, step.StepSHA, outcome)
		e.emit(ctx, plan.PlanID, model.EventLedgerFinalize, wave.Name, step.StepSHA, map[string]any{"status": outcome.Status})
		return outcome, stepErr
	}

	for _, post := range step.Obligations.Postchecks {
		ok, err := e.db.EvalPredicate(ctx, post)
		if err != nil || !ok {
			outcome := ledger.Outcome{Status: model.LedgerFailed, RowsAffected: rows, ErrorSummary: "postcheck failed"}
			_ = e.ledger.Finalize(ctx, step.StepSHA, outcome)
			e.emit(ctx, plan.PlanID, model.EventLedgerFinalize, wave.Name, step.StepSHA, map[string]any{"status": outcome.Status})
			return outcome, &model.StepError{Kind: model.ErrPostconditionFailed, StepSHA: step.StepSHA, WaveName: wave.Name, Summary: "postcheck failed"}
		}
	}

	outcome := ledger.Outcome{Status: model.LedgerSuccess, RowsAffected: rows}
	if err := e.ledger.Finalize(ctx, step.StepSHA, outcome); err != nil {
		return outcome, &model.StepError{Kind: model.ErrDatabaseError, StepSHA: step.StepSHA, WaveName: wave.Name, Summary: model.TruncateSummary(err.Error())}
	}
	e.emit(ctx, plan.PlanID, model.EventLedgerFinalize, wave.Name, step.StepSHA, map[string]any{"status": outcome.Status})
	return outcome, nil
}

// reconcilePending probes the database for the step's expected
// postcondition and finalizes the pending ledger row accordingly, per the
// restart recovery rule of SPEC_FULL.md §4.5.
func (e *Executor) reconcilePending(ctx context.Context, step model.AnnotatedStep) error {
	for _, post := range step.Obligations.Postchecks {
		ok, err := e.db.EvalPredicate(ctx, post)
		if err != nil {
			return err
		}
		if !ok {
			return e.ledger.Finalize(ctx, step.StepSHA, ledger.Outcome{Status: model.LedgerFailed, ErrorSummary: "reconciliation: postcondition not met after restart"})
		}
	}
	return e.ledger.Finalize(ctx, step.StepSHA, ledger.Outcome{Status: model.LedgerSuccess})
}

func classifyDBError(step model.AnnotatedStep, wave model.AnnotatedWave, err error) *model.StepError {
	kind := model.ErrDatabaseError
	switch {
	case errors.Is(err, ErrLockTimeout):
		kind = model.ErrLockTimeout
	case errors.Is(err, ErrStatementTimeout):
		kind = model.ErrStatementTimeout
	}
	return &model.StepError{Kind: kind, StepSHA: step.StepSHA, WaveName: wave.Name, Summary: model.TruncateSummary(err.Error()), Cause: err}
}

func (e *Executor) emit(ctx context.Context, planID model.PlanID, typ model.EventType, wave model.WavePhase, stepSHA string, payload map[string]any) {
	if e.events == nil {
		return
	}
	_, _ = e.events.Emit(ctx, planID, typ, wave, stepSHA, payload)
}
