// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package hazard

import (
	"testing"

	"drydock/pkg/model"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		step      model.Step
		wantClass model.HazardClass
		wantLock  model.LockClass
	}{
		{"create_view", model.Step{Op: model.OpCreateView}, model.H0, model.AccessShare},
		{"add_comment", model.Step{Op: model.OpAddComment}, model.H0, model.AccessShare},
		{"create_table", model.Step{Op: model.OpCreateTable}, model.H1, model.AccessExclusive},
		{
			"add_column_nullable",
			model.Step{Op: model.OpAddColumn, Payload: model.Payload{Nullable: true}},
			model.H1, model.ShareUpdateExclusive,
		},
		{
			"add_column_not_null_with_default",
			model.Step{Op: model.OpAddColumn, Payload: model.Payload{Nullable: false, Default: "0"}},
			model.H1, model.ShareUpdateExclusive,
		},
		{
			"add_column_not_null_no_default",
			model.Step{Op: model.OpAddColumn, Payload: model.Payload{Nullable: false}},
			model.H3, model.AccessExclusive,
		},
		{"add_index_concurrently", model.Step{Op: model.OpAddIndexConcurrently}, model.H1, model.ShareUpdateExclusive},
		{"add_index", model.Step{Op: model.OpAddIndex}, model.H3, model.Share},
		{"add_fk_not_valid", model.Step{Op: model.OpAddForeignKeyNotValid}, model.H1, model.ShareRowExclusive},
		{"validate_constraint", model.Step{Op: model.OpValidateConstraint}, model.H3, model.ShareUpdateExclusive},
		{"backfill_sql", model.Step{Op: model.OpBackfillSQL}, model.H2, model.RowExclusive},
		{"set_not_null", model.Step{Op: model.OpSetNotNull}, model.H3, model.AccessExclusive},
		{"drop_column", model.Step{Op: model.OpDropColumn}, model.H3, model.AccessExclusive},
		{"drop_table", model.Step{Op: model.OpDropTable}, model.H3, model.AccessExclusive},
		{"alter_column_type", model.Step{Op: model.OpAlterColumnType}, model.H3, model.AccessExclusive},
		{"unknown_op_fails_closed", model.Step{Op: model.Op("bogus")}, model.H3, model.AccessExclusive},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotClass, gotLock := Classify(tc.step)
			if gotClass != tc.wantClass {
				t.Errorf("hazard class = %v, want %v", gotClass, tc.wantClass)
			}
			if gotLock != tc.wantLock {
				t.Errorf("lock class = %v, want %v", gotLock, tc.wantLock)
			}
		})
	}
}
