// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Feature: CLI_GLOBAL_FLAGS
// Spec: SPEC_FULL.md §4.10

package commands

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// ResolvedFlags contains the resolved values for all global flags.
type ResolvedFlags struct {
	Config  string
	Verbose bool
	DryRun  bool
}

// ResolveFlags resolves global flags with precedence: command-line flag >
// environment variable > built-in default.
func ResolveFlags(cmd *cobra.Command) *ResolvedFlags {
	configFlag, _ := cmd.Flags().GetString("config")
	verboseFlag, _ := cmd.Flags().GetBool("verbose")
	dryRunFlag, _ := cmd.Flags().GetBool("dry-run")

	return &ResolvedFlags{
		Config:  resolveString(configFlag, os.Getenv("DRYDOCK_CONFIG"), "drydock.yml"),
		Verbose: resolveBool(verboseFlag, parseBoolEnv(os.Getenv("DRYDOCK_VERBOSE")), false),
		DryRun:  resolveBool(dryRunFlag, parseBoolEnv(os.Getenv("DRYDOCK_DRY_RUN")), false),
	}
}

func resolveString(flag, env, defaultValue string) string {
	if flag != "" {
		return flag
	}
	if env != "" {
		return env
	}
	return defaultValue
}

func resolveBool(flag, env, defaultValue bool) bool {
	if flag {
		return true
	}
	if env {
		return true
	}
	return defaultValue
}

func parseBoolEnv(value string) bool {
	if value == "" {
		return false
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false
	}
	return parsed
}
