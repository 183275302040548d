// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package dbdriver implements the Executor's Database boundary against
// PostgreSQL via pgx: session-scoped lock/statement timeouts, transactional
// step application, and declarative predicate evaluation rendered to
// catalog queries (never interpolated with caller-supplied SQL).
package dbdriver

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"drydock/pkg/executor"
	"drydock/pkg/model"
)

// Feature: DOMAIN_DB_DRIVER
// Spec: SPEC_FULL.md §4.9

// postgres error codes for lock_timeout / statement_timeout, per
// https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	sqlStateLockNotAvailable = "55P03"
	sqlStateQueryCanceled    = "57014"
)

// Driver implements executor.Database against a pgx connection pool.
type Driver struct {
	pool *pgxpool.Pool
}

// New wraps an already-connected pool.
func New(pool *pgxpool.Pool) *Driver {
	return &Driver{pool: pool}
}

var _ executor.Database = (*Driver)(nil)

func (d *Driver) BeginTransactional(ctx context.Context) (executor.Tx, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("dbdriver: begin: %w", err)
	}
	return &pgxTx{tx: tx}, nil
}

func (d *Driver) ExecNonTransactional(ctx context.Context, stmt string, lockMS, stmtMS int64) (int64, error) {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("dbdriver: acquire: %w", err)
	}
	defer conn.Release()
	// SET is session-scoped; reset both timeouts before the connection
	// returns to the pool so they do not carry over to later interactions.
	defer func() {
		_, _ = conn.Exec(context.Background(), "RESET lock_timeout")
		_, _ = conn.Exec(context.Background(), "RESET statement_timeout")
	}()

	if _, err := conn.Exec(ctx, fmt.Sprintf("SET lock_timeout = '%dms'", lockMS)); err != nil {
		return 0, fmt.Errorf("dbdriver: set lock_timeout: %w", err)
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET statement_timeout = '%dms'", stmtMS)); err != nil {
		return 0, fmt.Errorf("dbdriver: set statement_timeout: %w", err)
	}

	tag, err := conn.Exec(ctx, stmt)
	if err != nil {
		return 0, classifyPGError(err)
	}
	return tag.RowsAffected(), nil
}

func (d *Driver) EvalPredicate(ctx context.Context, pred model.Predicate) (bool, error) {
	return evalPredicate(ctx, d.pool, pred)
}

type pgxTx struct {
	tx pgx.Tx
}

func (t *pgxTx) SetTimeouts(ctx context.Context, lockMS, stmtMS int64) error {
	if _, err := t.tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockMS)); err != nil {
		return fmt.Errorf("dbdriver: set local lock_timeout: %w", err)
	}
	if _, err := t.tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", stmtMS)); err != nil {
		return fmt.Errorf("dbdriver: set local statement_timeout: %w", err)
	}
	return nil
}

func (t *pgxTx) EvalPredicate(ctx context.Context, pred model.Predicate) (bool, error) {
	return evalPredicate(ctx, t.tx, pred)
}

func (t *pgxTx) Exec(ctx context.Context, stmt string) (int64, error) {
	tag, err := t.tx.Exec(ctx, stmt)
	if err != nil {
		return 0, classifyPGError(err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgxTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgxTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// classifyPGError wraps a pgx error with the executor's timeout sentinels
// when the error corresponds to lock_timeout or statement_timeout firing,
// so the executor can classify it via errors.Is without importing pgx.
func classifyPGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateLockNotAvailable:
			return fmt.Errorf("%w: %s", executor.ErrLockTimeout, pgErr.Message)
		case sqlStateQueryCanceled:
			return fmt.Errorf("%w: %s", executor.ErrStatementTimeout, pgErr.Message)
		}
	}
	return err
}
