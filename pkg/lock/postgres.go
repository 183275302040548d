// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package lock

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Feature: CORE_SERIALIZATION_LOCK_POSTGRES
// Spec: SPEC_FULL.md §2.1, §4, §5

// Postgres is a SerializationLock backed by PostgreSQL session-level
// advisory locks (pg_try_advisory_lock). The lock is held on a single
// dedicated connection checked out from the pool for the lifetime of the
// hold, since advisory locks are session-scoped: releasing the connection
// back to a pool that reuses it for other queries would silently drop the
// lock.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an already-connected pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var _ SerializationLock = (*Postgres)(nil)

func (p *Postgres) TryAcquire(ctx context.Context, scope string) (Handle, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock: acquiring connection: %w", err)
	}

	key := scopeKey(scope)

	var got bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&got); err != nil {
		conn.Release()
		return nil, fmt.Errorf("lock: pg_try_advisory_lock: %w", err)
	}

	if !got {
		conn.Release()
		return nil, ErrUnavailable
	}

	return &postgresHandle{conn: conn, key: key}, nil
}

// scopeKey hashes the scope string to the 64-bit signed key PostgreSQL
// advisory locks take. FNV-1a is sufficient here: collisions merely widen
// the serialization boundary to two distinct scopes sharing a key, which is
// safe (over-serialization), never unsafe (under-serialization couldn't
// happen from a hash collision alone since both scopes would then share
// the same lock).
func scopeKey(scope string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(scope))
	return int64(h.Sum64())
}

type postgresHandle struct {
	conn *pgxpool.Conn
	key  int64
}

func (h *postgresHandle) Release(ctx context.Context) error {
	if h.conn == nil {
		return nil
	}
	defer func() {
		h.conn.Release()
		h.conn = nil
	}()

	_, err := h.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, h.key)
	if err != nil && !isConnClosed(err) {
		return fmt.Errorf("lock: pg_advisory_unlock: %w", err)
	}
	return nil
}

func isConnClosed(err error) bool {
	return err == pgx.ErrTxClosed
}
