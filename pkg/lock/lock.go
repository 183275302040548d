// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package lock provides the cluster-wide serialization lock ensuring at
// most one active executor per scope (SPEC_FULL.md §4, §5).
package lock

import (
	"context"
	"errors"
)

// Feature: CORE_SERIALIZATION_LOCK
// Spec: SPEC_FULL.md §4, §5

// ErrUnavailable is returned by TryAcquire when the scope is already locked.
var ErrUnavailable = errors.New("lock: serialization lock unavailable")

// SerializationLock is a cluster-wide advisory mutex keyed by scope
// (typically the target database name). At most one executor may hold the
// lock for a given scope at a time.
type SerializationLock interface {
	// TryAcquire attempts to take the lock for scope without blocking. It
	// returns ErrUnavailable if another holder has it.
	TryAcquire(ctx context.Context, scope string) (Handle, error)
}

// Handle represents a held lock; Release must be safe to call more than
// once and on every termination path, including after a panic recovery.
type Handle interface {
	Release(ctx context.Context) error
}
