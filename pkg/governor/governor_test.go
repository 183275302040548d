// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package governor

import (
	"context"
	"errors"
	"testing"

	"drydock/pkg/model"
)

type fixedSampler struct {
	sample model.GovernorSample
	err    error
}

func (s fixedSampler) Sample(context.Context) (model.GovernorSample, error) {
	return s.sample, s.err
}

func TestEvaluate_ProceedsUnderThresholds(t *testing.T) {
	g := New(fixedSampler{sample: model.GovernorSample{ActiveConnections: 1}}, DefaultThresholds())
	_, directive, err := g.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if directive.Kind != model.DirectiveProceed {
		t.Fatalf("directive = %v, want proceed", directive.Kind)
	}
}

func TestEvaluate_SlowsUnderConnectionPressure(t *testing.T) {
	g := New(fixedSampler{sample: model.GovernorSample{ActiveConnections: 200}}, Thresholds{MaxActiveConnections: 80, SlowFactor: 3.0})
	_, directive, err := g.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if directive.Kind != model.DirectiveSlow {
		t.Fatalf("directive = %v, want slow", directive.Kind)
	}
	if directive.Factor != 3.0 {
		t.Fatalf("factor = %v, want 3.0", directive.Factor)
	}
}

func TestEvaluate_PausesUnderElevatedErrorRate(t *testing.T) {
	g := New(fixedSampler{sample: model.GovernorSample{RecentErrorRate: 0.5}}, Thresholds{MaxErrorRate: 0.05})
	_, directive, err := g.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if directive.Kind != model.DirectivePause {
		t.Fatalf("directive = %v, want pause", directive.Kind)
	}
}

func TestEvaluate_PropagatesSamplerError(t *testing.T) {
	wantErr := errors.New("boom")
	g := New(fixedSampler{err: wantErr}, DefaultThresholds())
	_, _, err := g.Evaluate(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("Evaluate() error = %v, want %v", err, wantErr)
	}
}

func TestAbort_ShortCircuitsFutureEvaluations(t *testing.T) {
	g := New(fixedSampler{sample: model.GovernorSample{}}, DefaultThresholds())
	if g.Aborted() {
		t.Fatalf("expected Aborted() to be false before Abort()")
	}

	g.Abort()
	if !g.Aborted() {
		t.Fatalf("expected Aborted() to be true after Abort()")
	}

	_, directive, err := g.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if directive.Kind != model.DirectiveAbort {
		t.Fatalf("directive = %v, want abort after external Abort()", directive.Kind)
	}
}

func TestDirectiveFor_ZeroSlowFactorFallsBackToDefault(t *testing.T) {
	g := New(fixedSampler{}, Thresholds{MaxActiveConnections: 10, SlowFactor: 0})
	directive := g.directiveFor(model.GovernorSample{ActiveConnections: 50})
	if directive.Factor != 2.0 {
		t.Fatalf("factor = %v, want fallback default 2.0", directive.Factor)
	}
}
