// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package fingerprint

import (
	"testing"

	"drydock/pkg/model"
)

func TestFingerprint_ColumnOrderIsSignificant(t *testing.T) {
	a := model.Step{Op: model.OpAddIndexConcurrently, Payload: model.Payload{Table: "users", Cols: []string{"b", "a"}}}
	b := model.Step{Op: model.OpAddIndexConcurrently, Payload: model.Payload{Table: "users", Cols: []string{"a", "b"}}}

	shaA, err := Fingerprint(a)
	if err != nil {
		t.Fatalf("Fingerprint(a) error = %v", err)
	}
	shaB, err := Fingerprint(b)
	if err != nil {
		t.Fatalf("Fingerprint(b) error = %v", err)
	}

	// synth.go renders index DDL (and derives the default index name) from
	// Cols in declared order, so a reordering is a different statement and
	// must not collide onto the same step_sha.
	if shaA == shaB {
		t.Fatalf("expected column order to change the fingerprint, both produced %q", shaA)
	}
}

func TestFingerprint_NormalizesWhitespaceInSQL(t *testing.T) {
	a := model.Step{Op: model.OpBackfillSQL, Payload: model.Payload{SQL: "UPDATE t SET x = 1"}}
	b := model.Step{Op: model.OpBackfillSQL, Payload: model.Payload{SQL: "UPDATE  t   SET x = 1   "}}

	shaA, _ := Fingerprint(a)
	shaB, _ := Fingerprint(b)
	if shaA != shaB {
		t.Fatalf("expected whitespace-insensitive fingerprints, got %q vs %q", shaA, shaB)
	}
}

func TestFingerprint_TableCaseIsSignificant(t *testing.T) {
	a := model.Step{Op: model.OpCreateTable, Payload: model.Payload{Table: "Users", SQL: "id int"}}
	b := model.Step{Op: model.OpCreateTable, Payload: model.Payload{Table: "users", SQL: "id int"}}

	shaA, _ := Fingerprint(a)
	shaB, _ := Fingerprint(b)
	if shaA == shaB {
		t.Fatalf("expected table name case to change the fingerprint")
	}
}

func TestFingerprint_RejectsMissingOp(t *testing.T) {
	_, err := Fingerprint(model.Step{})
	if err == nil {
		t.Fatalf("expected error for step with no op")
	}
}

func TestFingerprint_DifferentLimitsProduceDifferentDigests(t *testing.T) {
	lock := int64(500)
	a := model.Step{Op: model.OpAddColumn, Payload: model.Payload{Table: "t", Name: "c", Type: "int"}}
	b := model.Step{Op: model.OpAddColumn, Payload: model.Payload{Table: "t", Name: "c", Type: "int"}, Limits: &model.Limits{MaxLockMS: &lock}}

	shaA, _ := Fingerprint(a)
	shaB, _ := Fingerprint(b)
	if shaA == shaB {
		t.Fatalf("expected limits to change the fingerprint")
	}
}
