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
	"os"
	"time"

	"github.com/spf13/cobra"

	"drydock/pkg/config"
	"drydock/pkg/executor"
	"drydock/pkg/logging"
	"drydock/pkg/model"
)

// Feature: CLI_APPLY
// Spec: SPEC_FULL.md §4.10, §6

// NewApplyCommand returns the `drydock apply` command.
func NewApplyCommand() *cobra.Command {
	var requester string
	var retryFailed bool
	var settleDelay time.Duration

	cmd := &cobra.Command{
		Use:   "apply <annotated-plan-file>",
		Short: "Execute an annotated plan against the target database",
		Long:  "Reads an AnnotatedPlan document and drives it to completion, streaming events to stdout.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, args[0], requester, retryFailed, settleDelay)
		},
	}

	cmd.Flags().StringVar(&requester, "requester", "", "opaque identifier recorded on ledger rows and events")
	cmd.Flags().BoolVar(&retryFailed, "retry-failed", false, "re-attempt steps previously recorded as failed")
	cmd.Flags().DurationVar(&settleDelay, "settle-delay", 0, "delay observed after each completed wave, before the next wave starts")

	return cmd
}

func runApply(cmd *cobra.Command, path, requester string, retryFailed bool, settleDelay time.Duration) error {
	flags := ResolveFlags(cmd)
	ctx := cmd.Context()
	log := logging.NewLoggerWithWriters(flags.Verbose, cmd.ErrOrStderr(), cmd.ErrOrStderr())

	data, err := os.ReadFile(path) // nolint:gosec // G304: CLI argument, expected to be a file path
	if err != nil {
		return exitError{code: 1, err: fmt.Errorf("reading annotated plan file: %w", err)}
	}

	var plan model.AnnotatedPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return exitError{code: 2, err: fmt.Errorf("parsing annotated plan file: %w", err)}
	}
	log.Debug("loaded annotated plan", logging.NewField("plan_id", plan.PlanID), logging.NewField("waves", len(plan.Waves)))

	cfg, err := config.Load(flags.Config)
	if err != nil {
		return exitError{code: 1, err: fmt.Errorf("loading config: %w", err)}
	}

	if flags.DryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "dry-run: would apply plan %s (%d waves)\n", plan.PlanID, len(plan.Waves))
		return nil
	}

	log.Debug("connecting to database", logging.NewField("scope", cfg.Database.Scope))
	dep, err := connectDeployment(ctx, cfg)
	if err != nil {
		log.Error("failed to connect deployment", logging.NewField("error", err.Error()))
		return exitError{code: 1, err: err}
	}
	defer dep.Close()

	out := cmd.OutOrStdout()
	stopTail := streamEvents(ctx, dep.events, plan.PlanID, out)
	defer stopTail()

	log.Info("executing plan", logging.NewField("plan_id", plan.PlanID), logging.NewField("requester", requester), logging.NewField("retry_failed", retryFailed))
	result, err := dep.exec.Execute(ctx, plan, executor.Options{
		Scope:       cfg.Database.Scope,
		Requester:   requester,
		RetryFailed: retryFailed,
		SettleDelay: settleDelay,
	})
	if err != nil {
		log.Error("execute returned an unexpected error", logging.NewField("error", err.Error()))
		return exitError{code: 1, err: fmt.Errorf("executing plan: %w", err)}
	}
	log.Debug("plan execution finished", logging.NewField("state", result.State), logging.NewField("steps_applied", result.StepsApplied), logging.NewField("steps_skipped", result.StepsSkipped))

	summary, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return exitError{code: 1, err: fmt.Errorf("marshaling execution result: %w", err)}
	}
	fmt.Fprintln(out, string(summary))

	switch result.State {
	case model.StateCompleted:
		return nil
	case model.StateAborted:
		if result.FirstFailure != nil && result.FirstFailure.Kind == model.ErrGovernorAbort {
			return exitError{code: 5, err: fmt.Errorf("plan %s aborted: %s", plan.PlanID, result.FirstFailure.Message)}
		}
		return exitError{code: 3, err: fmt.Errorf("plan %s aborted", plan.PlanID)}
	case model.StateFailed:
		if result.FirstFailure != nil && result.FirstFailure.Kind == model.ErrLockUnavailable {
			return exitError{code: 4, err: fmt.Errorf("plan %s failed: %s", plan.PlanID, result.FirstFailure.Message)}
		}
		return exitError{code: 1, err: fmt.Errorf("plan %s failed", plan.PlanID)}
	default:
		return exitError{code: 1, err: fmt.Errorf("plan %s ended in unexpected state %s", plan.PlanID, result.State)}
	}
}
