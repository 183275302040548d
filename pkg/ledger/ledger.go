// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package ledger provides the durable, unique-by-step_sha store of applied
// steps: the idempotency boundary described in SPEC_FULL.md §4.6.
package ledger

import (
	"context"
	"errors"

	"drydock/pkg/model"
)

// Feature: CORE_LEDGER
// Spec: SPEC_FULL.md §4.6

// ErrAlreadyPending is returned by Begin when a row for the step_sha exists.
var ErrAlreadyPending = errors.New("ledger: step_sha already has a row")

// ErrNotPending is returned by Finalize when the row is absent or terminal.
var ErrNotPending = errors.New("ledger: step_sha is not in pending state")

// CheckStatus is the result of a Check call.
type CheckStatus string

const (
	Absent  CheckStatus = "absent"
	Pending CheckStatus = "pending"
	Success CheckStatus = "success"
	Failed  CheckStatus = "failed"
)

// CheckResult reports the ledger status for a step_sha.
type CheckResult struct {
	Status       CheckStatus
	ErrorSummary string
}

// Outcome is the terminal outcome recorded by Finalize or Record.
type Outcome struct {
	Status          model.LedgerStatus
	ExecutionTimeMS int64
	RowsAffected    int64
	ErrorSummary    string
}

// Meta carries the plan/wave/requester context for a ledger row.
type Meta struct {
	PlanID    model.PlanID
	WaveName  model.WavePhase
	AppliedBy string
}

// Ledger is the durable, unique-by-step_sha store of applied steps.
//
// For any step_sha, the row set is {} or a single row in one of
// {Pending, Success, Failed}. The only transitions are Pending→Success and
// Pending→Failed; Record is a one-shot terminal write for transactional
// steps that never pass through Pending.
type Ledger interface {
	Check(ctx context.Context, stepSHA string) (CheckResult, error)
	Begin(ctx context.Context, stepSHA string, meta Meta) error
	Finalize(ctx context.Context, stepSHA string, outcome Outcome) error
	Record(ctx context.Context, stepSHA string, meta Meta, outcome Outcome) error

	// Show returns every entry recorded for a plan, in applied order, for
	// the `ledger show` diagnostic CLI view.
	Show(ctx context.Context, planID model.PlanID) ([]model.LedgerEntry, error)
}
