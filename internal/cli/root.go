// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package cli wires together the drydock root Cobra command and global CLI options.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"drydock/internal/cli/commands"
)

// NewRootCommand constructs the drydock root Cobra command, wiring the
// plan/apply/abort/ledger/events subcommands over the config and global
// flags described in SPEC_FULL.md §4.10.
//
// Feature: ARCH_OVERVIEW
// Spec: SPEC_FULL.md §4.10
func NewRootCommand() *cobra.Command {
	version := os.Getenv("DRYDOCK_VERSION")
	if version == "" {
		version = "0.0.0-dev"
	}

	cmd := &cobra.Command{
		Use:           "drydock",
		Short:         "drydock – zero-downtime schema-migration orchestrator",
		Long:          "drydock plans and executes hazard-classified, forward-only schema migrations against a live PostgreSQL database without blocking application traffic.",
		SilenceUsage:  true, // don't dump usage on user errors
		SilenceErrors: true, // centralize error printing in main()
	}

	// Global flags - registered in lexicographic order for deterministic help output
	cmd.PersistentFlags().StringP("config", "c", "", "path to drydock.yml")
	cmd.PersistentFlags().Bool("dry-run", false, "show what apply would do without executing it")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	// Version command – simple and explicit.
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of drydock",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "drydock version %s\n", version)
		},
	})

	// Subcommands - keep registrations in lexicographic order by .Use
	// to ensure deterministic help output.
	cmd.AddCommand(commands.NewAbortCommand())
	cmd.AddCommand(commands.NewApplyCommand())
	cmd.AddCommand(commands.NewEventsCommand())
	cmd.AddCommand(commands.NewLedgerCommand())
	cmd.AddCommand(commands.NewPlanCommand())

	return cmd
}
