// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package planstate

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"drydock/pkg/model"
)

// Feature: CORE_PLANSTATE_POSTGRES
// Spec: SPEC_FULL.md §2.1, §6

// Postgres is a pgx-backed Store.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an already-connected pool. Callers are responsible for
// running EnsureSchema once before first use.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var _ Store = (*Postgres)(nil)

// EnsureSchema creates the plans table if it does not already exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS drydock_plans (
	plan_id         TEXT PRIMARY KEY,
	state           TEXT NOT NULL,
	abort_requested BOOLEAN NOT NULL DEFAULT false,
	annotated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at      TIMESTAMPTZ,
	terminated_at   TIMESTAMPTZ,
	terminal_state  TEXT
)`
	_, err := p.pool.Exec(ctx, ddl)
	return err
}

func (p *Postgres) Touch(ctx context.Context, planID model.PlanID, state model.PlanState) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO drydock_plans (plan_id, state, started_at)
		VALUES ($1, $2, CASE WHEN $2 = 'RUNNING' THEN now() ELSE NULL END)
		ON CONFLICT (plan_id) DO UPDATE SET
			state = EXCLUDED.state,
			started_at = COALESCE(drydock_plans.started_at, EXCLUDED.started_at)`,
		string(planID), string(state))
	if err != nil {
		return fmt.Errorf("planstate: touch: %w", err)
	}
	return nil
}

func (p *Postgres) Terminate(ctx context.Context, planID model.PlanID, state model.PlanState) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE drydock_plans
		SET state = $2, terminal_state = $2, terminated_at = now()
		WHERE plan_id = $1`,
		string(planID), string(state))
	if err != nil {
		return fmt.Errorf("planstate: terminate: %w", err)
	}
	return nil
}

func (p *Postgres) RequestAbort(ctx context.Context, planID model.PlanID) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE drydock_plans SET abort_requested = true
		WHERE plan_id = $1 AND terminal_state IS NULL`,
		string(planID))
	if err != nil {
		return fmt.Errorf("planstate: request abort: %w", err)
	}
	return nil
}

func (p *Postgres) AbortRequested(ctx context.Context, planID model.PlanID) (bool, error) {
	var requested bool
	err := p.pool.QueryRow(ctx,
		`SELECT abort_requested FROM drydock_plans WHERE plan_id = $1`, string(planID)).Scan(&requested)
	if err != nil {
		// An unknown plan has no abort pending.
		return false, nil //nolint:nilerr // absence of a row is not an error condition here
	}
	return requested, nil
}
