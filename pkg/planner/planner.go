// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package planner implements the T.A.S.K.S. planner: it validates a
// PlanInput and annotates every step with its fingerprint, hazard class,
// lock class and proof obligations, grouping steps into ordered waves.
package planner

import (
	"fmt"

	"drydock/pkg/fingerprint"
	"drydock/pkg/hazard"
	"drydock/pkg/model"
	"drydock/pkg/obligations"
)

// Feature: CORE_PLANNER
// Spec: SPEC_FULL.md §4.4

// defaultPolicy is used when a PlanInput omits its policy block.
func defaultPolicy(mode model.Mode) model.Policy {
	return model.Policy{
		MaxHazard:     mode.MaxHazard(),
		DefaultLockMS: 0,
		DefaultStmtMS: 0,
	}
}

// Plan validates and annotates a PlanInput. On success it returns an
// AnnotatedPlan and a nil rejection. On failure it returns a PlanRejection
// naming the offending step and reason; it never touches a database or the
// ledger.
func Plan(in model.PlanInput) (model.AnnotatedPlan, *model.PlanRejection) {
	if rej := validatePhaseOrder(in.Waves); rej != nil {
		return model.AnnotatedPlan{}, rej
	}

	policy := defaultPolicy(in.Mode)
	if in.Policy != nil {
		if in.Policy.MaxHazard > policy.MaxHazard {
			return model.AnnotatedPlan{}, &model.PlanRejection{
				Kind:    model.ErrPolicyViolation,
				Message: fmt.Sprintf("policy.max_hazard %s exceeds mode %s cap %s", in.Policy.MaxHazard, in.Mode, policy.MaxHazard),
			}
		}
		policy = *in.Policy
	}

	seen := make(map[string]struct{})
	annotatedWaves := make([]model.AnnotatedWave, 0, len(in.Waves))
	maxHazard := model.H0

	for _, w := range in.Waves {
		aw := model.AnnotatedWave{Name: w.Name, Steps: make([]model.AnnotatedStep, 0, len(w.Steps))}

		for idx, step := range w.Steps {
			h, lock := hazard.Classify(step)

			sha, err := fingerprint.Fingerprint(step)
			if err != nil {
				return model.AnnotatedPlan{}, &model.PlanRejection{
					Kind: model.ErrInvalidStep, WaveName: w.Name, StepName: step.Name, StepIdx: idx,
					Message: err.Error(),
				}
			}

			if _, dup := seen[sha]; dup {
				return model.AnnotatedPlan{}, &model.PlanRejection{
					Kind: model.ErrDuplicateStep, WaveName: w.Name, StepName: step.Name, StepIdx: idx,
					Message: fmt.Sprintf("duplicate step_sha %s", sha),
				}
			}
			seen[sha] = struct{}{}

			obl, err := obligations.Build(step, h, w.Limits, policy)
			if err != nil {
				return model.AnnotatedPlan{}, &model.PlanRejection{
					Kind: model.ErrPolicyViolation, WaveName: w.Name, StepName: step.Name, StepIdx: idx,
					Message: err.Error(),
				}
			}

			if h > maxHazard {
				maxHazard = h
			}

			aw.Steps = append(aw.Steps, model.AnnotatedStep{
				Step:        step,
				StepSHA:     sha,
				HazardClass: h,
				LockClass:   lock,
				Obligations: obl,
			})
		}

		annotatedWaves = append(annotatedWaves, aw)
	}

	if maxHazard > policy.MaxHazard {
		return model.AnnotatedPlan{}, &model.PlanRejection{
			Kind:    model.ErrPolicyViolation,
			Message: fmt.Sprintf("plan max_hazard_class %s exceeds mode %s cap %s", maxHazard, in.Mode, policy.MaxHazard),
		}
	}

	planID := in.PlanID
	if planID == "" {
		planID = model.PlanID(fingerprintPlanID(in))
	}

	return model.AnnotatedPlan{
		PlanID:          planID,
		Title:           in.Title,
		Reason:          in.Reason,
		Mode:            in.Mode,
		Policy:          policy,
		Waves:           annotatedWaves,
		MaxHazardClass:  maxHazard,
		ChaosCompatible: maxHazard <= model.ModeChaos.MaxHazard(),
	}, nil
}

// validatePhaseOrder checks that every wave name is a canonical phase and
// that waves appear in non-decreasing canonical order. Plans may omit
// phases but never reorder them.
func validatePhaseOrder(waves []model.Wave) *model.PlanRejection {
	lastIdx := -1
	for i, w := range waves {
		idx := model.PhaseIndex(w.Name)
		if idx < 0 {
			return &model.PlanRejection{
				Kind: model.ErrInvalidStep, WaveName: w.Name, StepIdx: i,
				Message: fmt.Sprintf("wave name %q is not a canonical phase", w.Name),
			}
		}
		if idx < lastIdx {
			return &model.PlanRejection{
				Kind: model.ErrInvalidStep, WaveName: w.Name, StepIdx: i,
				Message: fmt.Sprintf("wave %q is out of canonical phase order", w.Name),
			}
		}
		lastIdx = idx
	}
	return nil
}

// fingerprintPlanID derives a stable plan_id from the plan's content when
// the caller does not supply one, so repeated submissions of the identical
// PlanInput are recognizable as the same plan.
func fingerprintPlanID(in model.PlanInput) string {
	h := "plan:" + in.Title + ":" + string(in.Mode)
	for _, w := range in.Waves {
		h += ":" + string(w.Name) + "=" + fmt.Sprint(len(w.Steps))
	}
	return h
}
