// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"drydock/pkg/config"
	"drydock/pkg/eventlog"
	"drydock/pkg/model"
)

// Feature: CLI_EVENTS
// Spec: SPEC_FULL.md §4.10, §6, §4.7

// NewEventsCommand returns the `drydock events` command group.
func NewEventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Diagnostic read-only views over the event stream",
	}
	cmd.AddCommand(newEventsTailCommand())
	return cmd
}

func newEventsTailCommand() *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "tail <plan-id>",
		Short: "Print events recorded for a plan, in sequence order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEventsTail(cmd, args[0], follow)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep tailing new events instead of exiting after the current tail")

	return cmd
}

func runEventsTail(cmd *cobra.Command, planID string, follow bool) error {
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

	out := cmd.OutOrStdout()

	if !follow {
		events, err := dep.events.Tail(ctx, model.PlanID(planID))
		if err != nil {
			return exitError{code: 1, err: fmt.Errorf("reading events: %w", err)}
		}
		for _, evt := range events {
			printEvent(out, evt)
		}
		return nil
	}

	ch, err := dep.events.Subscribe(ctx, model.PlanID(planID))
	if err != nil {
		return exitError{code: 1, err: fmt.Errorf("subscribing to events: %w", err)}
	}
	for evt := range ch {
		printEvent(out, evt)
	}
	return nil
}

func printEvent(out io.Writer, evt model.Event) {
	line, err := json.Marshal(evt)
	if err != nil {
		fmt.Fprintf(out, "%d %s %s\n", evt.Seq, evt.Type, evt.StepSHA)
		return
	}
	fmt.Fprintln(out, string(line))
}

// streamEvents subscribes to a plan's event stream and prints every event
// to out until ctx is done or the executor finishes. It returns a stop
// function the caller should defer to release the subscription promptly
// rather than waiting for ctx cancellation.
func streamEvents(ctx context.Context, events eventlog.EventLog, planID model.PlanID, out io.Writer) func() {
	subCtx, cancel := context.WithCancel(ctx)

	ch, err := events.Subscribe(subCtx, planID)
	if err != nil {
		cancel()
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range ch {
			printEvent(out, evt)
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
