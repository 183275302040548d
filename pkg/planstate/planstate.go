// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package planstate persists the plans table of SPEC_FULL.md §6: current
// state, timestamps and the abort-request flag a separate `drydock abort`
// process sets for a running `drydock apply` to observe.
package planstate

import (
	"context"

	"drydock/pkg/model"
)

// Feature: CORE_PLANSTATE
// Spec: SPEC_FULL.md §6

// Store tracks plan lifecycle state across process boundaries, letting an
// `abort` invocation running in a separate process signal a running
// `apply`.
type Store interface {
	// Touch records a plan entering ANNOTATED or RUNNING, creating the row
	// if absent.
	Touch(ctx context.Context, planID model.PlanID, state model.PlanState) error

	// Terminate records a plan's terminal state.
	Terminate(ctx context.Context, planID model.PlanID, state model.PlanState) error

	// RequestAbort sets the abort-requested flag for a plan. Idempotent;
	// requesting abort on an unknown or terminal plan is a no-op.
	RequestAbort(ctx context.Context, planID model.PlanID) error

	// AbortRequested reports whether RequestAbort has been called for a
	// plan that has not yet terminated.
	AbortRequested(ctx context.Context, planID model.PlanID) (bool, error)
}
