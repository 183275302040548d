// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package eventlog provides the append-only stream of execution events
// consumed by external observers (SPEC_FULL.md §4.7).
package eventlog

import (
	"context"
	"sync"
	"time"

	"drydock/pkg/model"
)

// Feature: CORE_EVENTLOG
// Spec: SPEC_FULL.md §4.7, §5.1

// subscriberBuffer bounds the per-subscriber event channel. A subscriber
// that falls this far behind is dropped rather than allowed to block the
// executor.
const subscriberBuffer = 256

// EventLog is the append-only store of plan execution events.
type EventLog interface {
	// Emit appends an event, assigning it the next seq for its plan.
	Emit(ctx context.Context, planID model.PlanID, typ model.EventType, wave model.WavePhase, stepSHA string, payload map[string]any) (model.Event, error)

	// Tail returns every event recorded so far for a plan, in seq order.
	Tail(ctx context.Context, planID model.PlanID) ([]model.Event, error)

	// Subscribe returns a channel of events for a plan, starting from the
	// current tail. The channel is closed when ctx is done or the
	// subscriber is dropped for lagging.
	Subscribe(ctx context.Context, planID model.PlanID) (<-chan model.Event, error)
}

// Memory is an in-process EventLog. The executor is its sole writer; any
// number of readers may Tail or Subscribe concurrently.
type Memory struct {
	mu          sync.Mutex
	byPlan      map[model.PlanID][]model.Event
	subscribers map[model.PlanID][]chan model.Event
}

// NewMemory returns an empty in-memory event log.
func NewMemory() *Memory {
	return &Memory{
		byPlan:      make(map[model.PlanID][]model.Event),
		subscribers: make(map[model.PlanID][]chan model.Event),
	}
}

var _ EventLog = (*Memory)(nil)

func (m *Memory) Emit(_ context.Context, planID model.PlanID, typ model.EventType, wave model.WavePhase, stepSHA string, payload map[string]any) (model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seq := int64(len(m.byPlan[planID])) + 1
	evt := model.Event{
		Seq:      seq,
		PlanID:   planID,
		Type:     typ,
		TS:       time.Now().UTC(),
		WaveName: wave,
		StepSHA:  stepSHA,
		Payload:  payload,
	}
	m.byPlan[planID] = append(m.byPlan[planID], evt)

	live := m.subscribers[planID][:0]
	for _, ch := range m.subscribers[planID] {
		select {
		case ch <- evt:
			live = append(live, ch)
		default:
			// Subscriber is lagging: drop it instead of blocking the
			// executor's emit path.
			close(ch)
		}
	}
	m.subscribers[planID] = live

	return evt, nil
}

func (m *Memory) Tail(_ context.Context, planID model.PlanID) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Event, len(m.byPlan[planID]))
	copy(out, m.byPlan[planID])
	return out, nil
}

func (m *Memory) Subscribe(ctx context.Context, planID model.PlanID) (<-chan model.Event, error) {
	ch := make(chan model.Event, subscriberBuffer)

	m.mu.Lock()
	m.subscribers[planID] = append(m.subscribers[planID], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subscribers[planID]
		for i, c := range subs {
			if c == ch {
				m.subscribers[planID] = append(subs[:i], subs[i+1:]...)
				close(c)
				break
			}
		}
	}()

	return ch, nil
}
