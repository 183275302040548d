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

	"github.com/spf13/cobra"

	"drydock/pkg/config"
	"drydock/pkg/logging"
	"drydock/pkg/model"
	"drydock/pkg/planner"
)

// Feature: CLI_PLAN
// Spec: SPEC_FULL.md §4.10, §6

// NewPlanCommand returns the `drydock plan` command.
func NewPlanCommand() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "plan <plan-file>",
		Short: "Validate and annotate a plan without executing it",
		Long:  "Reads a PlanInput document, annotates every step with its fingerprint, hazard class and obligations, and prints the resulting AnnotatedPlan.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, args[0], mode)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "override the plan's mode (chaos|ci|strict)")

	return cmd
}

func runPlan(cmd *cobra.Command, path string, modeOverride string) error {
	flags := ResolveFlags(cmd)
	log := logging.NewLoggerWithWriters(flags.Verbose, cmd.ErrOrStderr(), cmd.ErrOrStderr())

	data, err := os.ReadFile(path) // nolint:gosec // G304: CLI argument, expected to be a file path
	if err != nil {
		return exitError{code: 1, err: fmt.Errorf("reading plan file: %w", err)}
	}

	var in model.PlanInput
	if err := json.Unmarshal(data, &in); err != nil {
		return exitError{code: 2, err: fmt.Errorf("parsing plan file: %w", err)}
	}
	log.Debug("loaded plan input", logging.NewField("title", in.Title), logging.NewField("mode", in.Mode), logging.NewField("waves", len(in.Waves)))

	if modeOverride != "" {
		log.Debug("mode overridden by flag", logging.NewField("mode", modeOverride))
		in.Mode = model.Mode(modeOverride)
	}

	if flags.Config != "" {
		if exists, _ := config.Exists(flags.Config); exists {
			if cfg, err := config.Load(flags.Config); err == nil && in.Policy == nil && cfg.Policy.MaxHazard != "" {
				hazard, err := config.ParseHazard(cfg.Policy.MaxHazard)
				if err == nil {
					log.Debug("resolved policy from config", logging.NewField("config", flags.Config), logging.NewField("max_hazard", hazard))
					in.Policy = &model.Policy{
						MaxHazard:     hazard,
						DefaultLockMS: cfg.Policy.DefaultTimeouts.LockMS,
						DefaultStmtMS: cfg.Policy.DefaultTimeouts.StmtMS,
					}
				}
			}
		}
	}

	annotated, rejection := planner.Plan(in)
	if rejection != nil {
		log.Warn("plan rejected", logging.NewField("kind", rejection.Kind))
		fmt.Fprintln(cmd.ErrOrStderr(), rejection.Error())
		return exitError{code: 2, err: rejection}
	}
	log.Debug("plan annotated", logging.NewField("plan_id", annotated.PlanID), logging.NewField("max_hazard_class", annotated.MaxHazardClass))

	out, err := json.MarshalIndent(annotated, "", "  ")
	if err != nil {
		return exitError{code: 1, err: fmt.Errorf("marshaling annotated plan: %w", err)}
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
