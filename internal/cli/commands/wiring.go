// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"drydock/internal/dbdriver"
	"drydock/pkg/config"
	"drydock/pkg/eventlog"
	"drydock/pkg/executor"
	"drydock/pkg/governor"
	"drydock/pkg/ledger"
	"drydock/pkg/lock"
	"drydock/pkg/model"
	"drydock/pkg/planstate"
)

// Feature: CLI_WIRING
// Spec: SPEC_FULL.md §4.9, §4.10

// deployment bundles the collaborators an Executor needs, wired against a
// live database connection per cfg.Database.
type deployment struct {
	pool   *pgxpool.Pool
	driver *dbdriver.Driver
	ledger ledger.Ledger
	events eventlog.EventLog
	lock   lock.SerializationLock
	gov    *governor.Governor
	states planstate.Store
	exec   *executor.Executor
}

// connectDeployment opens a pool against the DATABASE_URL-style environment
// variable named by cfg.Database.ConnectionEnv, ensures the ledger schema,
// and wires an Executor over Postgres-backed collaborators.
func connectDeployment(ctx context.Context, cfg *config.Config) (*deployment, error) {
	dsn := os.Getenv(cfg.Database.ConnectionEnv)
	if dsn == "" {
		return nil, fmt.Errorf("environment variable %s is not set", cfg.Database.ConnectionEnv)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	led := ledger.NewPostgres(pool)
	if err := led.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring ledger schema: %w", err)
	}

	events := eventlog.NewPostgres(pool)
	if err := events.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring events schema: %w", err)
	}

	states := planstate.NewPostgres(pool)
	if err := states.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring plan-state schema: %w", err)
	}

	driver := dbdriver.New(pool)
	serlock := lock.NewPostgres(pool)
	gov := governor.New(newPoolSampler(pool), governor.Thresholds{
		MaxActiveConnections: cfg.Governor.MaxActiveConnections,
		MaxErrorRate:         cfg.Governor.MaxErrorRate,
		SlowFactor:           2.0,
	})

	return &deployment{
		pool:   pool,
		driver: driver,
		ledger: led,
		events: events,
		lock:   serlock,
		gov:    gov,
		states: states,
		exec:   executor.New(driver, led, events, serlock, gov, states),
	}, nil
}

func (d *deployment) Close() {
	d.pool.Close()
}

// poolSampler is the governor's default Sampler: it reads pg_stat_activity
// for active connection counts. Error rate tracking is left at zero here
// since it requires executor-side feedback the CLI wiring does not yet
// thread through; RunSampler callers that need it should supply their own
// Sampler.
type poolSampler struct {
	pool *pgxpool.Pool
}

func newPoolSampler(pool *pgxpool.Pool) *poolSampler {
	return &poolSampler{pool: pool}
}

var _ governor.Sampler = (*poolSampler)(nil)

// Sample reads pg_stat_activity for the active (non-idle) backend count
// against the current database. Error rate and replication lag are left at
// zero: tracking them requires executor-side feedback this sampler does not
// have visibility into.
func (s *poolSampler) Sample(ctx context.Context) (model.GovernorSample, error) {
	var active int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM pg_stat_activity
		WHERE datname = current_database() AND state != 'idle'
	`).Scan(&active)
	if err != nil {
		return model.GovernorSample{}, fmt.Errorf("sampling pg_stat_activity: %w", err)
	}

	return model.GovernorSample{
		ActiveConnections: active,
		TS:                time.Now().UTC(),
	}, nil
}
