// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package executor

import (
	"context"

	"drydock/pkg/model"
)

// Feature: CORE_EXECUTOR_DATABASE
// Spec: SPEC_FULL.md §4.5, §4.9

// Database is the driver boundary the Executor depends on. internal/dbdriver
// implements it against PostgreSQL via pgx; tests supply an in-memory fake.
type Database interface {
	// BeginTransactional opens a transaction-scoped interaction for a step
	// whose statement can run inside a transaction.
	BeginTransactional(ctx context.Context) (Tx, error)

	// ExecNonTransactional runs a step's statement outside any transaction,
	// for ops that cannot run inside one (e.g. CREATE INDEX CONCURRENTLY).
	// Session timeouts are still applied for the duration of the call.
	ExecNonTransactional(ctx context.Context, stmt string, lockMS, stmtMS int64) (rowsAffected int64, err error)

	// EvalPredicate evaluates a declarative predicate outside any step
	// transaction (used for two-phase reconciliation after a crash).
	EvalPredicate(ctx context.Context, pred model.Predicate) (bool, error)
}

// Tx is a single transactional database interaction: session timeouts,
// prechecks, the statement itself, and postchecks all run against the same
// transaction so they are atomic to outside observers.
type Tx interface {
	SetTimeouts(ctx context.Context, lockMS, stmtMS int64) error
	EvalPredicate(ctx context.Context, pred model.Predicate) (bool, error)
	Exec(ctx context.Context, stmt string) (rowsAffected int64, err error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
