// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package obligations derives proof-obligation predicates and timeout
// budgets from a step and its hazard class.
package obligations

import (
	"fmt"

	"drydock/pkg/model"
)

// Feature: CORE_PROOF_OBLIGATIONS
// Spec: SPEC_FULL.md §4.3

// defaultBudget holds the default (max_lock_ms, max_stmt_ms) per hazard class.
var defaultBudget = map[model.HazardClass][2]int64{
	model.H0: {2000, 10_000},
	model.H1: {2000, 10_000},
	model.H2: {5_000, 60_000},
	model.H3: {10_000, 300_000},
}

// Build derives the prechecks, postchecks and time budgets for a step given
// its hazard class, resolving limit overrides with precedence
// step > wave > plan policy > hazard default, while enforcing that overrides
// are monotonic: a step limit cannot exceed a wave limit, a wave limit
// cannot exceed the plan policy cap.
func Build(s model.Step, hazard model.HazardClass, wave *model.Limits, policy model.Policy) (model.Obligations, error) {
	base := defaultBudget[hazard]
	maxLockMS, maxStmtMS := base[0], base[1]

	if policy.DefaultLockMS > 0 {
		maxLockMS = policy.DefaultLockMS
	}
	if policy.DefaultStmtMS > 0 {
		maxStmtMS = policy.DefaultStmtMS
	}

	if wave != nil {
		if wave.MaxLockMS != nil {
			if *wave.MaxLockMS > maxLockMS {
				return model.Obligations{}, fmt.Errorf("wave limit max_lock_ms=%d exceeds policy cap %d", *wave.MaxLockMS, maxLockMS)
			}
			maxLockMS = *wave.MaxLockMS
		}
		if wave.MaxStmtMS != nil {
			if *wave.MaxStmtMS > maxStmtMS {
				return model.Obligations{}, fmt.Errorf("wave limit max_stmt_ms=%d exceeds policy cap %d", *wave.MaxStmtMS, maxStmtMS)
			}
			maxStmtMS = *wave.MaxStmtMS
		}
	}

	if s.Limits != nil {
		if s.Limits.MaxLockMS != nil {
			if *s.Limits.MaxLockMS > maxLockMS {
				return model.Obligations{}, fmt.Errorf("step limit max_lock_ms=%d exceeds wave/policy cap %d", *s.Limits.MaxLockMS, maxLockMS)
			}
			maxLockMS = *s.Limits.MaxLockMS
		}
		if s.Limits.MaxStmtMS != nil {
			if *s.Limits.MaxStmtMS > maxStmtMS {
				return model.Obligations{}, fmt.Errorf("step limit max_stmt_ms=%d exceeds wave/policy cap %d", *s.Limits.MaxStmtMS, maxStmtMS)
			}
			maxStmtMS = *s.Limits.MaxStmtMS
		}
	}

	pre, post := predicates(s)

	return model.Obligations{
		Prechecks:  pre,
		Postchecks: post,
		MaxLockMS:  maxLockMS,
		MaxStmtMS:  maxStmtMS,
	}, nil
}

// predicates returns (prechecks, postchecks) for a step. The builder is a
// templater over the declarative Predicate enum, not a SQL parser.
func predicates(s model.Step) ([]model.Predicate, []model.Predicate) {
	switch s.Op {
	case model.OpCreateTable:
		pre := model.Predicate{Kind: model.PredNot, Not: &model.Predicate{Kind: model.PredTableExists, Table: s.Payload.Table}}
		post := model.Predicate{Kind: model.PredTableExists, Table: s.Payload.Table}
		return []model.Predicate{pre}, []model.Predicate{post}

	case model.OpAddColumn:
		exists := model.Predicate{Kind: model.PredTableExists, Table: s.Payload.Table}
		notCol := model.Predicate{Kind: model.PredNot, Not: &model.Predicate{Kind: model.PredColumnExists, Table: s.Payload.Table, Column: s.Payload.Name}}
		pre := model.Predicate{Kind: model.PredAnd, And: []model.Predicate{exists, notCol}}
		post := model.Predicate{Kind: model.PredColumnExists, Table: s.Payload.Table, Column: s.Payload.Name}
		return []model.Predicate{pre}, []model.Predicate{post}

	case model.OpAddIndexConcurrently, model.OpAddIndex:
		name := model.IndexNameFor(s.Payload)
		pre := model.Predicate{Kind: model.PredNot, Not: &model.Predicate{Kind: model.PredIndexExists, Name: name}}
		post := model.Predicate{Kind: model.PredIndexExists, Name: name}
		return []model.Predicate{pre}, []model.Predicate{post}

	case model.OpAddForeignKeyNotValid:
		name := model.FKNameFor(s.Payload)
		srcExists := model.Predicate{Kind: model.PredTableExists, Table: s.Payload.Src}
		tgtExists := model.Predicate{Kind: model.PredTableExists, Table: s.Payload.Tgt}
		notFK := model.Predicate{Kind: model.PredNot, Not: &model.Predicate{Kind: model.PredConstraintExists, Table: s.Payload.Src, Name: name}}
		pre := model.Predicate{Kind: model.PredAnd, And: []model.Predicate{srcExists, tgtExists, notFK}}
		post := model.Predicate{Kind: model.PredConstraintExists, Table: s.Payload.Src, Name: name}
		return []model.Predicate{pre}, []model.Predicate{post}

	default:
		// H0/H2/H3 ops with no typed precondition template (create_view,
		// add_comment, validate_constraint, set_not_null, backfill_sql,
		// drop_column, drop_table, alter_column_type) run with an empty
		// obligation set: their correctness is established by the executed
		// statement's own success/failure, not a separate check.
		return nil, nil
	}
}
