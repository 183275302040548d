// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"drydock/pkg/config"
	"drydock/pkg/model"
)

// Feature: CLI_LEDGER
// Spec: SPEC_FULL.md §4.10, §6

// NewLedgerCommand returns the `drydock ledger` command group.
func NewLedgerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Diagnostic read-only views over the step ledger",
	}
	cmd.AddCommand(newLedgerShowCommand())
	return cmd
}

func newLedgerShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <plan-id>",
		Short: "Print every ledger entry recorded for a plan, in applied order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedgerShow(cmd, args[0])
		},
	}
}

func runLedgerShow(cmd *cobra.Command, planID string) error {
	flags := ResolveFlags(cmd)
	ctx := cmd.Context()

	cfg, err := config.Load(flags.Config)
	if err != nil {
		return exitError{code: 1, err: fmt.Errorf("loading config: %w", err)}
	}

	dep, err := connectDeployment(ctx, cfg)
	if err != nil {
		return exitError{code: 1, err: err}
	}
	defer dep.Close()

	entries, err := dep.ledger.Show(ctx, model.PlanID(planID))
	if err != nil {
		return exitError{code: 1, err: fmt.Errorf("reading ledger: %w", err)}
	}

	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return exitError{code: 1, err: fmt.Errorf("marshaling ledger entries: %w", err)}
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
