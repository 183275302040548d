// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package cli

import (
	"bytes"
	"strings"
	"testing"
)

// Feature: ARCH_OVERVIEW
// Spec: SPEC_FULL.md §4.10
func TestNewRootCommand_HasExpectedBasics(t *testing.T) {
	cmd := NewRootCommand()

	if cmd.Use != "drydock" {
		t.Fatalf("expected Use to be 'drydock', got %q", cmd.Use)
	}

	if cmd.Short == "" {
		t.Fatalf("expected Short description to be non-empty")
	}

	versionCmd, _, err := cmd.Find([]string{"version"})
	if err != nil {
		t.Fatalf("expected to find 'version' subcommand, got error: %v", err)
	}
	if versionCmd.Use != "version" {
		t.Fatalf("expected 'version' command Use to be 'version', got %q", versionCmd.Use)
	}

	for _, name := range []string{"plan", "apply", "abort", "ledger", "events"} {
		if _, _, err := cmd.Find([]string{name}); err != nil {
			t.Fatalf("expected to find %q subcommand, got error: %v", name, err)
		}
	}
}

func TestVersionCommand_PrintsVersion(t *testing.T) {
	cmd := NewRootCommand()

	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected no error executing 'version' command, got: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "drydock version") {
		t.Fatalf("expected output to contain 'drydock version', got: %q", out)
	}
}

func TestLedgerCommand_RequiresPlanID(t *testing.T) {
	cmd := NewRootCommand()

	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"ledger", "show"})

	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error when 'ledger show' is called without a plan-id argument")
	}
}
