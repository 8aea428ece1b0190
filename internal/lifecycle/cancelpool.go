// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

package lifecycle

import (
	"context"
	"sync"
)

// CancelPool issues cancellation handles for outbound requests belonging to
// one consumer context. CancelAll aborts every outstanding handle; handles
// requested afterwards are issued already-cancelled so callers fail fast
// instead of starting doomed work.
type CancelPool struct {
	mu        sync.Mutex
	root      context.Context
	cancelAll context.CancelFunc
	cancelled bool
}

// NewCancelPool creates a pool rooted at parent. A nil parent uses
// context.Background().
func NewCancelPool(parent context.Context) *CancelPool {
	if parent == nil {
		parent = context.Background()
	}
	root, cancel := context.WithCancel(parent)
	return &CancelPool{root: root, cancelAll: cancel}
}

// Acquire returns a fresh cancellable context derived from the pool root,
// plus its individual cancel function. After CancelAll has run, the
// returned context is already cancelled.
func (p *CancelPool) Acquire() (context.Context, context.CancelFunc) {
	p.mu.Lock()
	root := p.root
	p.mu.Unlock()

	return context.WithCancel(root)
}

// CancelAll aborts every context issued from this pool, present and future.
// Idempotent.
func (p *CancelPool) CancelAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.cancelled {
		p.cancelled = true
		p.cancelAll()
	}
}

// Cancelled reports whether CancelAll has run.
func (p *CancelPool) Cancelled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled
}
