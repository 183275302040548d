// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package lock

import (
	"context"
	"sync"
)

// Feature: CORE_SERIALIZATION_LOCK_MEMORY
// Spec: SPEC_FULL.md §4, §5

// Memory is an in-process SerializationLock, used by tests and by
// single-process deployments where a Postgres advisory lock is unavailable.
type Memory struct {
	mu     sync.Mutex
	locked map[string]struct{}
}

// NewMemory returns an empty in-memory serialization lock.
func NewMemory() *Memory {
	return &Memory{locked: make(map[string]struct{})}
}

var _ SerializationLock = (*Memory)(nil)

func (m *Memory) TryAcquire(_ context.Context, scope string) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.locked[scope]; held {
		return nil, ErrUnavailable
	}
	m.locked[scope] = struct{}{}
	return &memoryHandle{m: m, scope: scope}, nil
}

type memoryHandle struct {
	m       *Memory
	scope   string
	once    sync.Once
}

func (h *memoryHandle) Release(_ context.Context) error {
	h.once.Do(func() {
		h.m.mu.Lock()
		defer h.m.mu.Unlock()
		delete(h.m.locked, h.scope)
	})
	return nil
}
