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
	"sort"
	"sync"
	"time"

	"drydock/pkg/model"
)

// Feature: CORE_LEDGER_MEMORY
// Spec: SPEC_FULL.md §4.6

// Memory is an in-process Ledger implementation, used by tests and by
// single-process deployments that do not need cross-process durability.
type Memory struct {
	mu   sync.Mutex
	rows map[string]*model.LedgerEntry
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{rows: make(map[string]*model.LedgerEntry)}
}

var _ Ledger = (*Memory)(nil)

func (m *Memory) Check(_ context.Context, stepSHA string) (CheckResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[stepSHA]
	if !ok {
		return CheckResult{Status: Absent}, nil
	}
	switch row.Status {
	case model.LedgerPending:
		return CheckResult{Status: Pending}, nil
	case model.LedgerSuccess:
		return CheckResult{Status: Success}, nil
	case model.LedgerFailed:
		return CheckResult{Status: Failed, ErrorSummary: row.ErrorSummary}, nil
	default:
		return CheckResult{Status: Absent}, nil
	}
}

func (m *Memory) Begin(_ context.Context, stepSHA string, meta Meta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rows[stepSHA]; ok {
		return ErrAlreadyPending
	}
	m.rows[stepSHA] = &model.LedgerEntry{
		StepSHA:   stepSHA,
		PlanID:    meta.PlanID,
		WaveName:  meta.WaveName,
		AppliedBy: meta.AppliedBy,
		AppliedAt: time.Now().UTC(),
		Status:    model.LedgerPending,
	}
	return nil
}

func (m *Memory) Finalize(_ context.Context, stepSHA string, outcome Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[stepSHA]
	if !ok || row.Status != model.LedgerPending {
		return ErrNotPending
	}
	row.Status = outcome.Status
	row.ExecutionTimeMS = outcome.ExecutionTimeMS
	row.RowsAffected = outcome.RowsAffected
	row.ErrorSummary = outcome.ErrorSummary
	return nil
}

func (m *Memory) Record(_ context.Context, stepSHA string, meta Meta, outcome Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rows[stepSHA]; ok {
		return ErrAlreadyPending
	}
	m.rows[stepSHA] = &model.LedgerEntry{
		StepSHA:         stepSHA,
		PlanID:          meta.PlanID,
		WaveName:        meta.WaveName,
		AppliedBy:       meta.AppliedBy,
		AppliedAt:       time.Now().UTC(),
		ExecutionTimeMS: outcome.ExecutionTimeMS,
		RowsAffected:    outcome.RowsAffected,
		Status:          outcome.Status,
		ErrorSummary:    outcome.ErrorSummary,
	}
	return nil
}

func (m *Memory) Show(_ context.Context, planID model.PlanID) ([]model.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.LedgerEntry
	for _, row := range m.rows {
		if row.PlanID == planID {
			out = append(out, *row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AppliedAt.Before(out[j].AppliedAt) })
	return out, nil
}
