// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package hazard classifies a Step into a (HazardClass, LockClass) pair.
package hazard

import "drydock/pkg/model"

// Feature: CORE_HAZARD_CLASSIFIER
// Spec: SPEC_FULL.md §4.2

// Classify maps a step's operation tag and metadata to a hazard class and
// lock class. The table is exhaustive over the known Op set; any unknown
// op fails closed to (H3, AccessExclusive).
func Classify(s model.Step) (model.HazardClass, model.LockClass) {
	switch s.Op {
	case model.OpCreateView, model.OpAddComment:
		return model.H0, model.AccessShare
	case model.OpCreateTable:
		return model.H1, model.AccessExclusive
	case model.OpAddColumn:
		if !s.Payload.Nullable && s.Payload.Default == "" {
			return model.H3, model.AccessExclusive
		}
		return model.H1, model.ShareUpdateExclusive
	case model.OpAddIndexConcurrently:
		return model.H1, model.ShareUpdateExclusive
	case model.OpAddIndex:
		return model.H3, model.Share
	case model.OpAddForeignKeyNotValid:
		return model.H1, model.ShareRowExclusive
	case model.OpValidateConstraint:
		return model.H3, model.ShareUpdateExclusive
	case model.OpBackfillSQL:
		return model.H2, model.RowExclusive
	case model.OpSetNotNull:
		return model.H3, model.AccessExclusive
	case model.OpDropColumn, model.OpDropTable, model.OpAlterColumnType:
		return model.H3, model.AccessExclusive
	default:
		// Unknown op: fail closed.
		return model.H3, model.AccessExclusive
	}
}
