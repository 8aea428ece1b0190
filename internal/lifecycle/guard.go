// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

// Package lifecycle ensures no resource outlives the consumer context that
// created it: in-flight requests, timers, subscriptions, and listeners are
// torn down through a single-use Guard, and outbound requests draw
// cancellable contexts from a CancelPool.
package lifecycle

import (
	"sync"

	"github.com/tomtom215/aquasync/internal/logging"
)

// Guard collects teardown actions for one consumer context and runs them
// exactly once, in registration order. A Guard is single-use: after Run,
// further registrations are rejected.
type Guard struct {
	mu       sync.Mutex
	cleanups []func()
	ran      bool
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{}
}

// RegisterCleanup records fn for teardown. Returns false (and does not
// record) when the guard has already run.
func (g *Guard) RegisterCleanup(fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ran {
		return false
	}
	g.cleanups = append(g.cleanups, fn)
	return true
}

// Run executes every registered cleanup in registration order, exactly
// once. A panicking cleanup is logged and swallowed so one broken teardown
// cannot block the rest. Subsequent Run calls are no-ops.
func (g *Guard) Run() {
	g.mu.Lock()
	if g.ran {
		g.mu.Unlock()
		return
	}
	g.ran = true
	cleanups := g.cleanups
	g.cleanups = nil
	g.mu.Unlock()

	for i, fn := range cleanups {
		runCleanup(i, fn)
	}
}

// runCleanup isolates one cleanup so a panic is contained.
func runCleanup(index int, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Int("cleanup_index", index).
				Interface("panic", r).
				Msg("cleanup panicked; continuing with remaining cleanups")
		}
	}()
	fn()
}

// Done reports whether the guard has run.
func (g *Guard) Done() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ran
}
