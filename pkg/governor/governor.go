// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package governor samples database-health signals and produces a
// backpressure directive consumed by the executor between steps
// (SPEC_FULL.md §4.8).
package governor

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"drydock/pkg/model"
)

// Feature: CORE_GOVERNOR
// Spec: SPEC_FULL.md §4.8

// Sampler produces a GovernorSample. Implementations observe a real
// database (active connections, error rate, replication lag); tests supply
// a fixed or scripted sampler.
type Sampler interface {
	Sample(ctx context.Context) (model.GovernorSample, error)
}

// Thresholds configures the minimal governor policy of SPEC_FULL.md §4.8.
type Thresholds struct {
	MaxActiveConnections int
	MaxErrorRate          float64
	SlowFactor            float64
}

// DefaultThresholds returns the spec's suggested defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxActiveConnections: 80,
		MaxErrorRate:         0.05,
		SlowFactor:           2.0,
	}
}

// Governor evaluates samples against its thresholds to produce directives.
// It also exposes an external-abort signal: once Abort is called, every
// subsequent Evaluate yields abort("external"). An Evaluate that already
// passed that check returns the directive of its own sample.
type Governor struct {
	thresholds Thresholds
	sampler    Sampler
	aborted    atomic.Bool
}

// New constructs a Governor over the given sampler and thresholds.
func New(sampler Sampler, thresholds Thresholds) *Governor {
	return &Governor{sampler: sampler, thresholds: thresholds}
}

// Abort requests an external abort; honored on the next Evaluate.
func (g *Governor) Abort() {
	g.aborted.Store(true)
}

// Aborted reports whether an external abort has been requested.
func (g *Governor) Aborted() bool {
	return g.aborted.Load()
}

// Evaluate samples the database and returns the resulting directive.
func (g *Governor) Evaluate(ctx context.Context) (model.GovernorSample, model.Directive, error) {
	if g.aborted.Load() {
		return model.GovernorSample{}, model.Directive{Kind: model.DirectiveAbort, Reason: "external"}, nil
	}

	sample, err := g.sampler.Sample(ctx)
	if err != nil {
		return model.GovernorSample{}, model.Directive{}, err
	}

	return sample, g.directiveFor(sample), nil
}

// directiveFor implements the minimal policy: slow under connection
// pressure, pause under elevated error rate, otherwise proceed. Richer
// signals (replication lag, long-running statement counts) are
// implementation-defined extension points left for Sampler/Thresholds to
// grow into; the executor's contract only requires the directive enum be
// honored.
func (g *Governor) directiveFor(s model.GovernorSample) model.Directive {
	if s.RecentErrorRate > g.thresholds.MaxErrorRate {
		return model.Directive{Kind: model.DirectivePause, Reason: "error_rate"}
	}
	if s.ActiveConnections > g.thresholds.MaxActiveConnections {
		factor := g.thresholds.SlowFactor
		if factor <= 0 {
			factor = 2.0
		}
		return model.Directive{Kind: model.DirectiveSlow, Factor: factor}
	}
	return model.Directive{Kind: model.DirectiveProceed}
}

// RunSampler runs a periodic sampling loop, pushing each sample+directive to
// out, until ctx is done. It is supervised by an errgroup so a sampler
// error terminates the loop cleanly instead of leaking a goroutine; the
// loop only reports samples and directives on out and never mutates plan
// state, per the "governor never mutates plan state" rule of SPEC_FULL.md
// §5. The executor does not use RunSampler: it calls Evaluate directly
// before each step.
func (g *Governor) RunSampler(ctx context.Context, sample <-chan struct{}, out chan<- Sample) error {
	grp, ctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-sample:
				s, d, err := g.Evaluate(ctx)
				if err != nil {
					return err
				}
				select {
				case out <- Sample{Sample: s, Directive: d}:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})

	return grp.Wait()
}

// Sample pairs a GovernorSample with the directive it produced, as
// delivered to the executor over RunSampler's output channel.
type Sample struct {
	Sample    model.GovernorSample
	Directive model.Directive
}
