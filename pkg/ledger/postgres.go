// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"drydock/pkg/model"
)

// Feature: CORE_LEDGER_POSTGRES
// Spec: SPEC_FULL.md §2.1, §4.6

// Postgres is a pgx-backed Ledger. It stores one row per step_sha in the
// drydock_ledger table, matching the persisted layout of SPEC_FULL.md §6.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an already-connected pool. Callers are responsible for
// running EnsureSchema once before first use.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var _ Ledger = (*Postgres)(nil)

// EnsureSchema creates the ledger table if it does not already exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS drydock_ledger (
	step_sha          TEXT PRIMARY KEY,
	plan_id           TEXT NOT NULL,
	wave_name         TEXT NOT NULL,
	applied_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	applied_by        TEXT NOT NULL,
	execution_time_ms BIGINT NOT NULL DEFAULT 0,
	rows_affected     BIGINT NOT NULL DEFAULT 0,
	status            TEXT NOT NULL,
	error_summary     TEXT
)`
	_, err := p.pool.Exec(ctx, ddl)
	return err
}

func (p *Postgres) Check(ctx context.Context, stepSHA string) (CheckResult, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT status, COALESCE(error_summary, '') FROM drydock_ledger WHERE step_sha = $1`, stepSHA)

	var status, summary string
	if err := row.Scan(&status, &summary); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CheckResult{Status: Absent}, nil
		}
		return CheckResult{}, fmt.Errorf("ledger check: %w", err)
	}

	switch model.LedgerStatus(status) {
	case model.LedgerPending:
		return CheckResult{Status: Pending}, nil
	case model.LedgerSuccess:
		return CheckResult{Status: Success}, nil
	case model.LedgerFailed:
		return CheckResult{Status: Failed, ErrorSummary: summary}, nil
	default:
		return CheckResult{Status: Absent}, nil
	}
}

func (p *Postgres) Begin(ctx context.Context, stepSHA string, meta Meta) error {
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO drydock_ledger (step_sha, plan_id, wave_name, applied_by, status)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (step_sha) DO NOTHING`,
		stepSHA, string(meta.PlanID), string(meta.WaveName), meta.AppliedBy, string(model.LedgerPending))
	if err != nil {
		return fmt.Errorf("ledger begin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyPending
	}
	return nil
}

func (p *Postgres) Finalize(ctx context.Context, stepSHA string, outcome Outcome) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE drydock_ledger
		 SET status = $2, execution_time_ms = $3, rows_affected = $4, error_summary = NULLIF($5, '')
		 WHERE step_sha = $1 AND status = $6`,
		stepSHA, string(outcome.Status), outcome.ExecutionTimeMS, outcome.RowsAffected, outcome.ErrorSummary, string(model.LedgerPending))
	if err != nil {
		return fmt.Errorf("ledger finalize: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

func (p *Postgres) Record(ctx context.Context, stepSHA string, meta Meta, outcome Outcome) error {
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO drydock_ledger
		   (step_sha, plan_id, wave_name, applied_by, execution_time_ms, rows_affected, status, error_summary)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
		 ON CONFLICT (step_sha) DO NOTHING`,
		stepSHA, string(meta.PlanID), string(meta.WaveName), meta.AppliedBy,
		outcome.ExecutionTimeMS, outcome.RowsAffected, string(outcome.Status), outcome.ErrorSummary)
	if err != nil {
		return fmt.Errorf("ledger record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyPending
	}
	return nil
}

func (p *Postgres) Show(ctx context.Context, planID model.PlanID) ([]model.LedgerEntry, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT step_sha, plan_id, wave_name, applied_at, applied_by, execution_time_ms, rows_affected, status, COALESCE(error_summary, '')
		 FROM drydock_ledger WHERE plan_id = $1 ORDER BY applied_at ASC`, string(planID))
	if err != nil {
		return nil, fmt.Errorf("ledger show: %w", err)
	}
	defer rows.Close()

	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var planID, waveName, status string
		if err := rows.Scan(&e.StepSHA, &planID, &waveName, &e.AppliedAt, &e.AppliedBy,
			&e.ExecutionTimeMS, &e.RowsAffected, &status, &e.ErrorSummary); err != nil {
			return nil, fmt.Errorf("ledger show: scanning row: %w", err)
		}
		e.PlanID = model.PlanID(planID)
		e.WaveName = model.WavePhase(waveName)
		e.Status = model.LedgerStatus(status)
		out = append(out, e)
	}
	return out, rows.Err()
}
