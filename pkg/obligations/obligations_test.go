// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package obligations

import (
	"testing"

	"drydock/pkg/model"
)

func TestBuild_UsesHazardDefaultBudgetWithNoOverrides(t *testing.T) {
	step := model.Step{Op: model.OpCreateTable, Payload: model.Payload{Table: "widgets"}}
	obl, err := Build(step, model.H1, nil, model.Policy{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if obl.MaxLockMS != 2000 || obl.MaxStmtMS != 10_000 {
		t.Fatalf("got (%d, %d), want H1 defaults (2000, 10000)", obl.MaxLockMS, obl.MaxStmtMS)
	}
	if len(obl.Prechecks) != 1 || len(obl.Postchecks) != 1 {
		t.Fatalf("expected create_table to carry one precheck and one postcheck, got %d/%d", len(obl.Prechecks), len(obl.Postchecks))
	}
}

func TestBuild_PolicyOverridesHazardDefault(t *testing.T) {
	step := model.Step{Op: model.OpBackfillSQL}
	policy := model.Policy{DefaultLockMS: 1000, DefaultStmtMS: 20_000}
	obl, err := Build(step, model.H2, nil, policy)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if obl.MaxLockMS != 1000 || obl.MaxStmtMS != 20_000 {
		t.Fatalf("got (%d, %d), want policy overrides (1000, 20000)", obl.MaxLockMS, obl.MaxStmtMS)
	}
}

func TestBuild_WaveLimitExceedingPolicyCapIsRejected(t *testing.T) {
	step := model.Step{Op: model.OpBackfillSQL}
	tooHigh := int64(999_999)
	wave := &model.Limits{MaxLockMS: &tooHigh}
	policy := model.Policy{DefaultLockMS: 1000}

	if _, err := Build(step, model.H2, wave, policy); err == nil {
		t.Fatalf("expected error when wave limit exceeds policy cap")
	}
}

func TestBuild_StepLimitExceedingWaveCapIsRejected(t *testing.T) {
	waveCap := int64(2000)
	stepCap := int64(5000)
	step := model.Step{Op: model.OpBackfillSQL, Limits: &model.Limits{MaxLockMS: &stepCap}}
	wave := &model.Limits{MaxLockMS: &waveCap}

	if _, err := Build(step, model.H2, wave, model.Policy{}); err == nil {
		t.Fatalf("expected error when step limit exceeds wave cap")
	}
}

func TestBuild_MonotonicOverridesAreAccepted(t *testing.T) {
	waveCap := int64(4000)
	stepCap := int64(2000)
	step := model.Step{Op: model.OpBackfillSQL, Limits: &model.Limits{MaxLockMS: &stepCap}}
	wave := &model.Limits{MaxLockMS: &waveCap}

	obl, err := Build(step, model.H2, wave, model.Policy{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if obl.MaxLockMS != stepCap {
		t.Fatalf("MaxLockMS = %d, want step override %d", obl.MaxLockMS, stepCap)
	}
}

func TestBuild_AddColumnObligationsReferenceTableAndColumn(t *testing.T) {
	step := model.Step{Op: model.OpAddColumn, Payload: model.Payload{Table: "widgets", Name: "sku"}}
	obl, err := Build(step, model.H1, nil, model.Policy{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(obl.Postchecks) != 1 || obl.Postchecks[0].Kind != model.PredColumnExists {
		t.Fatalf("expected a column_exists postcheck, got %+v", obl.Postchecks)
	}
	if obl.Postchecks[0].Column != "sku" {
		t.Fatalf("postcheck column = %q, want sku", obl.Postchecks[0].Column)
	}
}

func TestBuild_DefaultIndexNameMatchesRenderedDDLName(t *testing.T) {
	step := model.Step{Op: model.OpAddIndexConcurrently, Payload: model.Payload{Table: "widgets", Cols: []string{"sku", "region"}}}
	obl, err := Build(step, model.H2, nil, model.Policy{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(obl.Postchecks) != 1 || obl.Postchecks[0].Kind != model.PredIndexExists {
		t.Fatalf("expected an index_exists postcheck, got %+v", obl.Postchecks)
	}
	want := model.IndexNameFor(step.Payload)
	if obl.Postchecks[0].Name != want {
		t.Fatalf("postcheck index name = %q, want %q (the name synth.go actually creates)", obl.Postchecks[0].Name, want)
	}
}

func TestBuild_DefaultForeignKeyNameMatchesRenderedDDLName(t *testing.T) {
	step := model.Step{Op: model.OpAddForeignKeyNotValid, Payload: model.Payload{Src: "orders", Col: "widget_id", Tgt: "widgets", TgtCol: "id"}}
	obl, err := Build(step, model.H1, nil, model.Policy{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(obl.Postchecks) != 1 || obl.Postchecks[0].Kind != model.PredConstraintExists {
		t.Fatalf("expected a constraint_exists postcheck, got %+v", obl.Postchecks)
	}
	want := model.FKNameFor(step.Payload)
	if obl.Postchecks[0].Name != want {
		t.Fatalf("postcheck constraint name = %q, want %q (the name synth.go actually creates)", obl.Postchecks[0].Name, want)
	}
}

func TestBuild_OpsWithNoTemplateGetEmptyObligationSet(t *testing.T) {
	step := model.Step{Op: model.OpSetNotNull, Payload: model.Payload{Table: "t", Column: "c"}}
	obl, err := Build(step, model.H3, nil, model.Policy{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(obl.Prechecks) != 0 || len(obl.Postchecks) != 0 {
		t.Fatalf("expected no typed obligations for set_not_null, got %+v / %+v", obl.Prechecks, obl.Postchecks)
	}
}
