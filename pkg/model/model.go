// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package model defines the shared data types for the planner and executor:
// plans, waves, steps, hazard/lock classes, ledger entries and events.
package model

import "time"

// Feature: CORE_MODEL
// Spec: SPEC_FULL.md §3

// HazardClass is an ordered enum of how disruptive a step is.
type HazardClass int

const (
	// H0 is metadata-only (create view, add comment).
	H0 HazardClass = iota
	// H1 is additive, non-blocking.
	H1
	// H2 is data-touching with throttling.
	H2
	// H3 is blocking shape changes.
	H3
)

// String returns the canonical name of the hazard class.
func (h HazardClass) String() string {
	switch h {
	case H0:
		return "H0"
	case H1:
		return "H1"
	case H2:
		return "H2"
	case H3:
		return "H3"
	default:
		return "H?"
	}
}

// LockClass is an ordered enum of the strongest lock a step is known to take.
type LockClass int

const (
	AccessShare LockClass = iota
	RowShare
	RowExclusive
	ShareUpdateExclusive
	Share
	ShareRowExclusive
	Exclusive
	AccessExclusive
)

// String returns the PostgreSQL-style name of the lock class.
func (l LockClass) String() string {
	switch l {
	case AccessShare:
		return "ACCESS_SHARE"
	case RowShare:
		return "ROW_SHARE"
	case RowExclusive:
		return "ROW_EXCLUSIVE"
	case ShareUpdateExclusive:
		return "SHARE_UPDATE_EXCLUSIVE"
	case Share:
		return "SHARE"
	case ShareRowExclusive:
		return "SHARE_ROW_EXCLUSIVE"
	case Exclusive:
		return "EXCLUSIVE"
	case AccessExclusive:
		return "ACCESS_EXCLUSIVE"
	default:
		return "UNKNOWN"
	}
}

// Mode selects the policy a plan is validated against.
type Mode string

const (
	ModeChaos  Mode = "chaos"
	ModeCI     Mode = "ci"
	ModeStrict Mode = "strict"
)

// MaxHazard returns the maximum hazard class this mode permits.
func (m Mode) MaxHazard() HazardClass {
	switch m {
	case ModeChaos:
		return H2
	case ModeStrict:
		return H1
	case ModeCI:
		return H3
	default:
		return H0
	}
}

// Op is the closed set of step operation tags, declared as named string
// constants. The Go compiler does not check switches over Op for
// exhaustiveness, so hazard classification and obligation building each
// handle an unlisted variant in an explicit default case.
type Op string

const (
	OpCreateView               Op = "create_view"
	OpAddComment               Op = "add_comment"
	OpCreateTable              Op = "create_table"
	OpAddColumn                Op = "add_column"
	OpAddIndexConcurrently     Op = "add_index_concurrently"
	OpAddIndex                 Op = "add_index"
	OpAddForeignKeyNotValid    Op = "add_foreign_key_not_valid"
	OpValidateConstraint       Op = "validate_constraint"
	OpBackfillSQL              Op = "backfill_sql"
	OpSetNotNull               Op = "set_not_null"
	OpDropColumn               Op = "drop_column"
	OpDropTable                Op = "drop_table"
	OpAlterColumnType          Op = "alter_column_type"
)

// Limits carries per-step/wave/plan timeout overrides.
type Limits struct {
	MaxLockMS      *int64   `json:"max_lock_ms,omitempty"`
	MaxStmtMS      *int64   `json:"max_stmt_ms,omitempty"`
	RowsPerSecond  *int64   `json:"rows_per_second,omitempty"`
}

// Payload holds the op-specific fields of a Step. Only the fields relevant
// to Op are populated; the fingerprinter and classifier read them by name.
type Payload struct {
	Table    string   `json:"table,omitempty"`
	Name     string   `json:"name,omitempty"`
	Column   string   `json:"column,omitempty"`
	Type     string   `json:"type,omitempty"`
	Nullable bool     `json:"nullable,omitempty"`
	Default  string   `json:"default,omitempty"`
	Cols     []string `json:"cols,omitempty"`
	Where    string   `json:"where,omitempty"`
	Unique   bool     `json:"unique,omitempty"`
	Src      string   `json:"src,omitempty"`
	Col      string   `json:"col,omitempty"`
	Tgt      string   `json:"tgt,omitempty"`
	TgtCol   string   `json:"tgt_col,omitempty"`
	SQL      string   `json:"sql,omitempty"`
}

// Step is one atomic database change.
type Step struct {
	Op      Op       `json:"op"`
	Payload Payload  `json:"payload"`
	Limits  *Limits  `json:"limits,omitempty"`
	Name    string   `json:"name,omitempty"`
}

// Predicate is a declarative check kind. Predicates are rendered to SQL at
// the database-driver boundary and never mixed with caller-supplied SQL
// text, per SPEC_FULL.md §9.
type Predicate struct {
	Kind   PredicateKind `json:"kind"`
	Table  string        `json:"table,omitempty"`
	Column string        `json:"column,omitempty"`
	Name   string        `json:"name,omitempty"`
	Not    *Predicate    `json:"not,omitempty"`
	And    []Predicate   `json:"and,omitempty"`
}

// PredicateKind is the closed set of predicate shapes.
type PredicateKind string

const (
	PredTableExists      PredicateKind = "table_exists"
	PredColumnExists     PredicateKind = "column_exists"
	PredIndexExists      PredicateKind = "index_exists"
	PredConstraintExists PredicateKind = "constraint_exists"
	PredNot              PredicateKind = "not"
	PredAnd              PredicateKind = "and"
)

// Obligations are the derived pre/postconditions and time budgets for a step.
type Obligations struct {
	Prechecks  []Predicate `json:"prechecks,omitempty"`
	Postchecks []Predicate `json:"postchecks,omitempty"`
	MaxLockMS  int64       `json:"max_lock_ms"`
	MaxStmtMS  int64       `json:"max_stmt_ms"`
}

// AnnotatedStep is a Step plus everything the planner derives for it.
type AnnotatedStep struct {
	Step        Step        `json:"step"`
	StepSHA     string      `json:"step_sha"`
	HazardClass HazardClass `json:"hazard_class"`
	LockClass   LockClass   `json:"lock_class"`
	Obligations Obligations `json:"obligations"`
}

// WavePhase is one of the fixed canonical phase names.
type WavePhase string

const (
	PhasePlan      WavePhase = "plan"
	PhaseExpand    WavePhase = "expand"
	PhaseBackfill  WavePhase = "backfill"
	PhaseValidate  WavePhase = "validate"
	PhaseContract  WavePhase = "contract"
)

// CanonicalPhaseOrder is the total order waves must respect.
var CanonicalPhaseOrder = []WavePhase{PhasePlan, PhaseExpand, PhaseBackfill, PhaseValidate, PhaseContract}

// PhaseIndex returns the canonical index of a phase, or -1 if unknown.
func PhaseIndex(p WavePhase) int {
	for i, c := range CanonicalPhaseOrder {
		if c == p {
			return i
		}
	}
	return -1
}

// Wave is an ordered group of steps sharing a lifecycle substate.
type Wave struct {
	Name   WavePhase `json:"name"`
	Steps  []Step    `json:"steps"`
	Limits *Limits   `json:"limits,omitempty"`
}

// AnnotatedWave is a Wave whose steps have been annotated.
type AnnotatedWave struct {
	Name  WavePhase       `json:"name"`
	Steps []AnnotatedStep `json:"steps"`
}

// Policy is the plan-level policy envelope.
type Policy struct {
	MaxHazard       HazardClass `json:"max_hazard"`
	DefaultLockMS   int64       `json:"default_lock_ms"`
	DefaultStmtMS   int64       `json:"default_stmt_ms"`
}

// PlanID identifies a plan.
type PlanID string

// PlanInput is the caller-supplied migration submission, before annotation.
type PlanInput struct {
	PlanID PlanID  `json:"plan_id,omitempty"`
	Title  string  `json:"title"`
	Reason string  `json:"reason"`
	Mode   Mode    `json:"mode"`
	Policy *Policy `json:"policy,omitempty"`
	Waves  []Wave  `json:"waves"`
}

// AnnotatedPlan is the immutable output of the Planner.
type AnnotatedPlan struct {
	PlanID           PlanID          `json:"plan_id"`
	Title            string          `json:"title"`
	Reason           string          `json:"reason"`
	Mode             Mode            `json:"mode"`
	Policy           Policy          `json:"policy"`
	Waves            []AnnotatedWave `json:"waves"`
	MaxHazardClass   HazardClass     `json:"max_hazard_class"`
	ChaosCompatible  bool            `json:"chaos_compatible"`
}

// PlanState is the plan lifecycle state.
type PlanState string

const (
	StatePending   PlanState = "PENDING"
	StateAnnotated PlanState = "ANNOTATED"
	StateRunning   PlanState = "RUNNING"
	StateCompleted PlanState = "COMPLETED"
	StateFailed    PlanState = "FAILED"
	StateAborted   PlanState = "ABORTED"
)

// Terminal reports whether the state is one of the monotonic terminal states.
func (s PlanState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateAborted
}

// StepFailure describes the first failure of a terminal plan.
type StepFailure struct {
	StepSHA  string    `json:"step_sha"`
	WaveName WavePhase `json:"wave_name"`
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
}

// ExecutionResult is the terminal outcome of an Executor.Execute call.
type ExecutionResult struct {
	PlanID         PlanID       `json:"plan_id"`
	State          PlanState    `json:"state"`
	WavesCompleted int          `json:"waves_completed"`
	StepsApplied   int          `json:"steps_applied"`
	StepsSkipped   int          `json:"steps_skipped"`
	StepsFailed    int          `json:"steps_failed"`
	FirstFailure   *StepFailure `json:"first_failure,omitempty"`
}

// LedgerStatus is the status of a ledger row.
type LedgerStatus string

const (
	LedgerPending LedgerStatus = "pending"
	LedgerSuccess LedgerStatus = "success"
	LedgerFailed  LedgerStatus = "failed"
)

// LedgerEntry is a durable record of an applied (or attempted) step.
type LedgerEntry struct {
	StepSHA         string       `json:"step_sha"`
	PlanID          PlanID       `json:"plan_id"`
	WaveName        WavePhase    `json:"wave_name"`
	AppliedAt       time.Time    `json:"applied_at"`
	AppliedBy       string       `json:"applied_by"`
	ExecutionTimeMS int64        `json:"execution_time_ms"`
	RowsAffected    int64        `json:"rows_affected"`
	Status          LedgerStatus `json:"status"`
	ErrorSummary    string       `json:"error_summary,omitempty"`
}

// EventType is the exhaustive event vocabulary of SPEC_FULL.md §4.7.
type EventType string

const (
	EventPlanAnnotated     EventType = "plan.annotated"
	EventPlanStart         EventType = "plan.start"
	EventPlanOK            EventType = "plan.ok"
	EventPlanFail          EventType = "plan.fail"
	EventPlanAbort         EventType = "plan.abort"
	EventWaveStart         EventType = "wave.start"
	EventWaveOK            EventType = "wave.ok"
	EventWaveFail          EventType = "wave.fail"
	EventStepStart         EventType = "step.start"
	EventStepOK            EventType = "step.ok"
	EventStepSkip          EventType = "step.skip"
	EventStepFail          EventType = "step.fail"
	EventGovernorSample    EventType = "governor.sample"
	EventGovernorDirective EventType = "governor.directive"
	EventLedgerBegin       EventType = "ledger.begin"
	EventLedgerFinalize    EventType = "ledger.finalize"
)

// Event is one observation of executor behavior.
type Event struct {
	Seq      int64          `json:"seq"`
	PlanID   PlanID         `json:"plan_id"`
	Type     EventType      `json:"type"`
	TS       time.Time      `json:"ts"`
	WaveName WavePhase      `json:"wave_name,omitempty"`
	StepSHA  string         `json:"step_sha,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// Directive is the governor's backpressure decision.
type Directive struct {
	Kind   DirectiveKind `json:"kind"`
	Factor float64       `json:"factor,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

// DirectiveKind is the closed set of governor directives.
type DirectiveKind string

const (
	DirectiveProceed DirectiveKind = "proceed"
	DirectiveSlow    DirectiveKind = "slow"
	DirectivePause   DirectiveKind = "pause"
	DirectiveAbort   DirectiveKind = "abort"
)

// GovernorSample is a snapshot of database-health signals.
type GovernorSample struct {
	ActiveConnections    int       `json:"active_connections"`
	RecentErrorRate      float64   `json:"recent_error_rate"`
	LongRunningStatements int      `json:"long_running_statements"`
	ReplicationLagMS     *int64    `json:"replication_lag_ms,omitempty"`
	TS                   time.Time `json:"ts"`
}
