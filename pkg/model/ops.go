// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package model

// Feature: CORE_MODEL_OPS
// Spec: SPEC_FULL.md §4.5

// RequiresNonTransactional reports whether an Op's statement cannot run
// inside a transaction (PostgreSQL disallows CREATE INDEX CONCURRENTLY
// inside one). These ops use the Executor's two-phase pending/success
// ledger protocol instead of a single atomic transaction.
func (o Op) RequiresNonTransactional() bool {
	return o == OpAddIndexConcurrently
}

// RenderSQL returns the statement to execute for a step. backfill_sql
// always carries caller SQL and returns it unchanged; every other op is
// synthesized from its typed payload (create_view and create_table use
// Payload.SQL as the view body or column list). An op with no synthesis
// template returns Payload.SQL as given, which is "" when it is unset.
func (p Payload) RenderSQL(op Op) string {
	if op == OpBackfillSQL {
		return p.SQL
	}
	if stmt := synthesizeSQL(op, p); stmt != "" {
		return stmt
	}
	return p.SQL
}
