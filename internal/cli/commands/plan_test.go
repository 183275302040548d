// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"drydock/pkg/model"
)

const validPlanInput = `{
  "title": "add sku column",
  "mode": "ci",
  "waves": [
    {
      "name": "expand",
      "steps": [
        {"op": "add_column", "payload": {"table": "widgets", "name": "sku", "type": "text", "nullable": true}}
      ]
    }
  ]
}`

func writeTempFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestNewPlanCommand_SucceedsAndPrintsAnnotatedPlan(t *testing.T) {
	path := writeTempFile(t, "plan.json", validPlanInput)

	cmd := NewPlanCommand()
	cmd.Flags().String("config", "", "")
	cmd.Flags().Bool("verbose", false, "")
	cmd.Flags().Bool("dry-run", false, "")

	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{path})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var annotated model.AnnotatedPlan
	if err := json.Unmarshal(buf.Bytes(), &annotated); err != nil {
		t.Fatalf("failed to parse command output as AnnotatedPlan: %v\noutput: %s", err, buf.String())
	}
	if len(annotated.Waves) != 1 || len(annotated.Waves[0].Steps) != 1 {
		t.Fatalf("expected one wave with one step, got %+v", annotated.Waves)
	}
}

func TestNewPlanCommand_RejectsPolicyViolationWithExitCode2(t *testing.T) {
	contents := `{
	  "title": "backfill under strict mode",
	  "mode": "strict",
	  "waves": [
	    {"name": "backfill", "steps": [{"op": "backfill_sql", "payload": {"sql": "update t set x=1"}}]}
	  ]
	}`
	path := writeTempFile(t, "plan.json", contents)

	cmd := NewPlanCommand()
	cmd.Flags().String("config", "", "")
	cmd.Flags().Bool("verbose", false, "")
	cmd.Flags().Bool("dry-run", false, "")
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	if err == nil {
		t.Fatalf("expected an error for a policy-violating plan")
	}
	if ExitCode(err) != 2 {
		t.Fatalf("ExitCode() = %d, want 2", ExitCode(err))
	}
}

func TestNewPlanCommand_ModeFlagOverridesPlanInputMode(t *testing.T) {
	contents := `{
	  "title": "view only",
	  "mode": "strict",
	  "waves": [{"name": "expand", "steps": [{"op": "create_view", "payload": {"name": "v", "sql": "select 1"}}]}]
	}`
	path := writeTempFile(t, "plan.json", contents)

	cmd := NewPlanCommand()
	cmd.Flags().String("config", "", "")
	cmd.Flags().Bool("verbose", false, "")
	cmd.Flags().Bool("dry-run", false, "")
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--mode", "ci", path})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var annotated model.AnnotatedPlan
	if err := json.Unmarshal(buf.Bytes(), &annotated); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if annotated.Mode != model.ModeCI {
		t.Fatalf("Mode = %q, want ci", annotated.Mode)
	}
}

func TestNewPlanCommand_MissingFileReturnsExitCode1(t *testing.T) {
	cmd := NewPlanCommand()
	cmd.Flags().String("config", "", "")
	cmd.Flags().Bool("verbose", false, "")
	cmd.Flags().Bool("dry-run", false, "")
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing.json")})

	err := cmd.Execute()
	if err == nil {
		t.Fatalf("expected an error for a missing plan file")
	}
	if ExitCode(err) != 1 {
		t.Fatalf("ExitCode() = %d, want 1", ExitCode(err))
	}
}
