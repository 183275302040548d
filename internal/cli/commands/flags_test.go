// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package commands

import (
	"testing"

	"github.com/spf13/cobra"
)

func newFlagsTestCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringP("config", "c", "", "")
	cmd.Flags().BoolP("verbose", "v", false, "")
	cmd.Flags().Bool("dry-run", false, "")
	return cmd
}

func TestResolveFlags_DefaultsWhenUnset(t *testing.T) {
	cmd := newFlagsTestCommand()
	flags := ResolveFlags(cmd)
	if flags.Config != "drydock.yml" {
		t.Fatalf("Config = %q, want drydock.yml", flags.Config)
	}
	if flags.Verbose || flags.DryRun {
		t.Fatalf("expected verbose/dry-run to default to false")
	}
}

func TestResolveFlags_FlagTakesPrecedenceOverEnv(t *testing.T) {
	t.Setenv("DRYDOCK_CONFIG", "env.yml")

	cmd := newFlagsTestCommand()
	if err := cmd.Flags().Set("config", "flag.yml"); err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}

	flags := ResolveFlags(cmd)
	if flags.Config != "flag.yml" {
		t.Fatalf("Config = %q, want flag.yml (flag beats env)", flags.Config)
	}
}

func TestResolveFlags_EnvTakesPrecedenceOverDefault(t *testing.T) {
	t.Setenv("DRYDOCK_CONFIG", "env.yml")

	cmd := newFlagsTestCommand()
	flags := ResolveFlags(cmd)
	if flags.Config != "env.yml" {
		t.Fatalf("Config = %q, want env.yml", flags.Config)
	}
}

func TestParseBoolEnv(t *testing.T) {
	cases := map[string]bool{"": false, "true": true, "false": false, "1": true, "bogus": false}
	for in, want := range cases {
		if got := parseBoolEnv(in); got != want {
			t.Errorf("parseBoolEnv(%q) = %v, want %v", in, got, want)
		}
	}
}
