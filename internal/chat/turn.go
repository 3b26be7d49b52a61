// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the streaming chat controller.
//
// This file implements thread-safe tracking of the in-flight turn so that
// cancellation from the UI, a newer Send, or a session switch never races
// with the goroutine consuming the stream.
package chat

import (
	"context"
	"sync"
)

// =============================================================================
// TURN MANAGEMENT (THREAD-SAFE)
// =============================================================================

// turn is one Send invocation. done is closed after its cleanup has run.
type turn struct {
	id     uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// turnManager owns the cancel function of the active turn.
// IMPORTANT: This must be used as a pointer so the mutex is never copied.
type turnManager struct {
	mu      sync.Mutex
	current *turn
	next    uint64
}

func newTurnManager() *turnManager {
	return &turnManager{}
}

// begin installs a new turn derived from parent and cancels the previous
// one. The caller must wait on prev.done (if prev is non-nil) before
// touching the message list, and must call finish when done.
func (tm *turnManager) begin(parent context.Context) (ctx context.Context, t *turn, prev *turn) {
	ctx, cancel := context.WithCancel(parent)

	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.next++
	t = &turn{id: tm.next, cancel: cancel, done: make(chan struct{})}
	prev = tm.current
	tm.current = t
	if prev != nil {
		prev.cancel()
	}
	return ctx, t, prev
}

// finish releases t's context and marks it done. Safe to call once per turn.
func (tm *turnManager) finish(t *turn) {
	tm.mu.Lock()
	if tm.current == t {
		tm.current = nil
	}
	tm.mu.Unlock()

	t.cancel() // Always cancel to prevent context leaks
	close(t.done)
}

// cancel aborts the active turn, if any, and returns it.
func (tm *turnManager) cancel() *turn {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.current != nil {
		tm.current.cancel()
	}
	return tm.current
}

// active reports whether a turn is in flight.
func (tm *turnManager) active() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.current != nil
}
