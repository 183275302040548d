// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package executor

import "errors"

// Feature: CORE_EXECUTOR_ERRORS
// Spec: SPEC_FULL.md §7

// ErrLockTimeout and ErrStatementTimeout are sentinel errors a Database
// implementation wraps its driver-specific timeout error with, so the
// executor can classify them via errors.Is without depending on the
// driver's error types.
var (
	ErrLockTimeout      = errors.New("executor: lock_timeout exceeded")
	ErrStatementTimeout = errors.New("executor: statement_timeout exceeded")
)
