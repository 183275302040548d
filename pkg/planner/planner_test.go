// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package planner

import (
	"testing"

	"drydock/pkg/model"
)

func TestPlan_AnnotatesStepsWithFingerprintAndHazard(t *testing.T) {
	in := model.PlanInput{
		Title: "add sku column",
		Mode:  model.ModeCI,
		Waves: []model.Wave{
			{
				Name: model.PhaseExpand,
				Steps: []model.Step{
					{Op: model.OpAddColumn, Payload: model.Payload{Table: "widgets", Name: "sku", Type: "text", Nullable: true}},
				},
			},
		},
	}

	plan, rej := Plan(in)
	if rej != nil {
		t.Fatalf("Plan() rejected: %v", rej)
	}
	if len(plan.Waves) != 1 || len(plan.Waves[0].Steps) != 1 {
		t.Fatalf("expected one wave with one step, got %+v", plan.Waves)
	}

	step := plan.Waves[0].Steps[0]
	if step.StepSHA == "" {
		t.Fatalf("expected a non-empty step_sha")
	}
	if step.HazardClass != model.H1 {
		t.Fatalf("hazard class = %v, want H1", step.HazardClass)
	}
	if plan.PlanID == "" {
		t.Fatalf("expected a derived plan_id")
	}
}

func TestPlan_RejectsOutOfOrderPhases(t *testing.T) {
	in := model.PlanInput{
		Mode: model.ModeCI,
		Waves: []model.Wave{
			{Name: model.PhaseContract},
			{Name: model.PhaseExpand},
		},
	}
	_, rej := Plan(in)
	if rej == nil {
		t.Fatalf("expected rejection for out-of-order phases")
	}
	if rej.Kind != model.ErrInvalidStep {
		t.Fatalf("rejection kind = %v, want %v", rej.Kind, model.ErrInvalidStep)
	}
}

func TestPlan_RejectsUnknownPhaseName(t *testing.T) {
	in := model.PlanInput{
		Mode:  model.ModeCI,
		Waves: []model.Wave{{Name: model.WavePhase("bogus")}},
	}
	_, rej := Plan(in)
	if rej == nil {
		t.Fatalf("expected rejection for unknown phase name")
	}
}

func TestPlan_RejectsDuplicateStepFingerprints(t *testing.T) {
	step := model.Step{Op: model.OpAddComment, Payload: model.Payload{Table: "t", Default: "hello"}}
	in := model.PlanInput{
		Mode: model.ModeCI,
		Waves: []model.Wave{
			{Name: model.PhaseExpand, Steps: []model.Step{step, step}},
		},
	}
	_, rej := Plan(in)
	if rej == nil {
		t.Fatalf("expected rejection for duplicate step fingerprints")
	}
	if rej.Kind != model.ErrDuplicateStep {
		t.Fatalf("rejection kind = %v, want %v", rej.Kind, model.ErrDuplicateStep)
	}
}

func TestPlan_RejectsHazardExceedingModeCap(t *testing.T) {
	in := model.PlanInput{
		Mode: model.ModeStrict, // caps at H1
		Waves: []model.Wave{
			{Name: model.PhaseBackfill, Steps: []model.Step{{Op: model.OpBackfillSQL, Payload: model.Payload{SQL: "update t set x=1"}}}},
		},
	}
	_, rej := Plan(in)
	if rej == nil {
		t.Fatalf("expected rejection: backfill_sql is H2, strict mode caps at H1")
	}
	if rej.Kind != model.ErrPolicyViolation {
		t.Fatalf("rejection kind = %v, want %v", rej.Kind, model.ErrPolicyViolation)
	}
}

func TestPlan_RejectsPolicyMaxHazardAboveModeCap(t *testing.T) {
	in := model.PlanInput{
		Mode:   model.ModeStrict,
		Policy: &model.Policy{MaxHazard: model.H3},
	}
	_, rej := Plan(in)
	if rej == nil {
		t.Fatalf("expected rejection: policy.max_hazard above mode cap")
	}
}

func TestPlan_ChaosCompatibleReflectsMaxHazard(t *testing.T) {
	in := model.PlanInput{
		Mode: model.ModeCI,
		Waves: []model.Wave{
			{Name: model.PhaseExpand, Steps: []model.Step{{Op: model.OpCreateView, Payload: model.Payload{Name: "v", SQL: "select 1"}}}},
		},
	}
	plan, rej := Plan(in)
	if rej != nil {
		t.Fatalf("Plan() rejected: %v", rej)
	}
	if !plan.ChaosCompatible {
		t.Fatalf("expected an H0-only plan to be chaos compatible")
	}
}

func TestPlan_DerivedPlanIDIsStableForIdenticalInput(t *testing.T) {
	in := model.PlanInput{
		Title: "stable id test",
		Mode:  model.ModeCI,
		Waves: []model.Wave{{Name: model.PhaseExpand, Steps: []model.Step{{Op: model.OpAddComment, Payload: model.Payload{Table: "t", Default: "x"}}}}},
	}

	planA, rejA := Plan(in)
	planB, rejB := Plan(in)
	if rejA != nil || rejB != nil {
		t.Fatalf("unexpected rejections: %v, %v", rejA, rejB)
	}
	if planA.PlanID != planB.PlanID {
		t.Fatalf("expected identical plan_id for identical input, got %q vs %q", planA.PlanID, planB.PlanID)
	}
}

func TestPlan_RespectsCallerSuppliedPlanID(t *testing.T) {
	in := model.PlanInput{PlanID: "release-42", Mode: model.ModeCI}
	plan, rej := Plan(in)
	if rej != nil {
		t.Fatalf("Plan() rejected: %v", rej)
	}
	if plan.PlanID != "release-42" {
		t.Fatalf("PlanID = %q, want release-42", plan.PlanID)
	}
}
