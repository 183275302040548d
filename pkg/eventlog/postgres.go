// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"drydock/pkg/model"
)

// Feature: CORE_EVENTLOG_POSTGRES
// Spec: SPEC_FULL.md §2.1, §4.7, §6

// pollInterval bounds how often Subscribe polls the events table for new
// rows. Postgres has no built-in channel for this without LISTEN/NOTIFY,
// and adding that machinery is out of proportion to a diagnostic tailer.
const pollInterval = 500 * time.Millisecond

// Postgres is a pgx-backed EventLog. Unlike Memory, it durably persists
// events across process restarts, so `drydock events tail` run from a
// separate process than the `apply` that produced them still sees the
// stream, matching the persisted `events` layout of SPEC_FULL.md §6.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an already-connected pool. Callers are responsible for
// running EnsureSchema once before first use.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var _ EventLog = (*Postgres)(nil)

// EnsureSchema creates the events table if it does not already exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS drydock_events (
	plan_id   TEXT NOT NULL,
	seq       BIGINT NOT NULL,
	ts        TIMESTAMPTZ NOT NULL DEFAULT now(),
	type      TEXT NOT NULL,
	wave_name TEXT,
	step_sha  TEXT,
	payload   JSONB,
	PRIMARY KEY (plan_id, seq)
)`
	_, err := p.pool.Exec(ctx, ddl)
	return err
}

func (p *Postgres) Emit(ctx context.Context, planID model.PlanID, typ model.EventType, wave model.WavePhase, stepSHA string, payload map[string]any) (model.Event, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return model.Event{}, fmt.Errorf("eventlog: marshaling payload: %w", err)
	}

	var evt model.Event
	row := p.pool.QueryRow(ctx, `
		INSERT INTO drydock_events (plan_id, seq, type, wave_name, step_sha, payload)
		VALUES ($1, COALESCE((SELECT max(seq) FROM drydock_events WHERE plan_id = $1), 0) + 1, $2, NULLIF($3, ''), NULLIF($4, ''), $5)
		RETURNING seq, ts`,
		string(planID), string(typ), string(wave), stepSHA, payloadJSON)

	if err := row.Scan(&evt.Seq, &evt.TS); err != nil {
		return model.Event{}, fmt.Errorf("eventlog: emit: %w", err)
	}

	evt.PlanID = planID
	evt.Type = typ
	evt.WaveName = wave
	evt.StepSHA = stepSHA
	evt.Payload = payload
	return evt, nil
}

func (p *Postgres) Tail(ctx context.Context, planID model.PlanID) ([]model.Event, error) {
	return p.tailFrom(ctx, planID, 0)
}

func (p *Postgres) tailFrom(ctx context.Context, planID model.PlanID, afterSeq int64) ([]model.Event, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT seq, ts, type, COALESCE(wave_name, ''), COALESCE(step_sha, ''), payload
		FROM drydock_events WHERE plan_id = $1 AND seq > $2 ORDER BY seq ASC`,
		string(planID), afterSeq)
	if err != nil {
		return nil, fmt.Errorf("eventlog: tail: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var evt model.Event
		var typ, wave, stepSHA string
		var payloadJSON []byte
		if err := rows.Scan(&evt.Seq, &evt.TS, &typ, &wave, &stepSHA, &payloadJSON); err != nil {
			return nil, fmt.Errorf("eventlog: tail: scanning row: %w", err)
		}
		evt.PlanID = planID
		evt.Type = model.EventType(typ)
		evt.WaveName = model.WavePhase(wave)
		evt.StepSHA = stepSHA
		if len(payloadJSON) > 0 {
			_ = json.Unmarshal(payloadJSON, &evt.Payload)
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

// Subscribe first delivers every event already recorded for the plan, then
// polls the events table for rows with a higher seq. The returned channel
// is closed when ctx is done.
func (p *Postgres) Subscribe(ctx context.Context, planID model.PlanID) (<-chan model.Event, error) {
	existing, err := p.Tail(ctx, planID)
	if err != nil {
		return nil, err
	}

	ch := make(chan model.Event, subscriberBuffer)
	go func() {
		defer close(ch)

		lastSeq := int64(0)
		for _, evt := range existing {
			select {
			case ch <- evt:
				lastSeq = evt.Seq
			case <-ctx.Done():
				return
			}
		}

		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fresh, err := p.tailFrom(ctx, planID, lastSeq)
				if err != nil {
					return
				}
				for _, evt := range fresh {
					select {
					case ch <- evt:
						lastSeq = evt.Seq
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch, nil
}
