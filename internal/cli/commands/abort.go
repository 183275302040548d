// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"drydock/pkg/config"
	"drydock/pkg/logging"
	"drydock/pkg/model"
)

// Feature: CLI_ABORT
// Spec: SPEC_FULL.md §4.10, §6

// NewAbortCommand returns the `drydock abort` command.
func NewAbortCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "abort <plan-id>",
		Short: "Request that a running plan stop at its next suspension point",
		Long:  "Abort is idempotent; aborting a terminal or unknown plan is a no-op.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAbort(cmd, args[0])
		},
	}
}

func runAbort(cmd *cobra.Command, planID string) error {
	flags := ResolveFlags(cmd)
	ctx := cmd.Context()
	log := logging.NewLoggerWithWriters(flags.Verbose, cmd.ErrOrStderr(), cmd.ErrOrStderr())

	cfg, err := config.Load(flags.Config)
	if err != nil {
		return exitError{code: 1, err: fmt.Errorf("loading config: %w", err)}
	}

	dep, err := connectDeployment(ctx, cfg)
	if err != nil {
		return exitError{code: 1, err: err}
	}
	defer dep.Close()

	log.Info("requesting abort", logging.NewField("plan_id", planID))
	if err := dep.exec.Abort(ctx, model.PlanID(planID)); err != nil {
		log.Error("abort request failed", logging.NewField("plan_id", planID), logging.NewField("error", err.Error()))
		return exitError{code: 1, err: fmt.Errorf("requesting abort: %w", err)}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "abort requested for plan %s\n", planID)
	return nil
}
