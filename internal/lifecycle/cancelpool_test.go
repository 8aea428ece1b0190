// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

package lifecycle

import (
	"context"
	"testing"
)

func TestCancelPool_AcquireYieldsLiveContext(t *testing.T) {
	p := NewCancelPool(context.Background())
	ctx, cancel := p.Acquire()
	defer cancel()

	if ctx.Err() != nil {
		t.Errorf("Expected live context before any cancellation, got %v", ctx.Err())
	}
	if p.Cancelled() {
		t.Error("Expected pool to start uncancelled")
	}
}

func TestCancelPool_IndividualCancelDoesNotAffectPool(t *testing.T) {
	p := NewCancelPool(context.Background())

	a, cancelA := p.Acquire()
	b, cancelB := p.Acquire()
	defer cancelB()

	cancelA()
	if a.Err() == nil {
		t.Error("Expected individually cancelled context to be done")
	}
	if b.Err() != nil {
		t.Error("Expected sibling context to stay live")
	}
}

func TestCancelPool_CancelAllAbortsOutstandingHandles(t *testing.T) {
	p := NewCancelPool(context.Background())
	ctx, cancel := p.Acquire()
	defer cancel()

	p.CancelAll()

	select {
	case <-ctx.Done():
	default:
		t.Error("Expected outstanding handle to be cancelled by CancelAll")
	}
	if !p.Cancelled() {
		t.Error("Expected Cancelled to report true after CancelAll")
	}
}

func TestCancelPool_HandlesAfterCancelAllArePreCancelled(t *testing.T) {
	p := NewCancelPool(context.Background())
	p.CancelAll()

	ctx, cancel := p.Acquire()
	defer cancel()

	if ctx.Err() == nil {
		t.Error("Expected handle issued after CancelAll to be already cancelled")
	}
}

func TestCancelPool_CancelAllIsIdempotent(t *testing.T) {
	p := NewCancelPool(nil)
	p.CancelAll()
	p.CancelAll() // must not panic

	if !p.Cancelled() {
		t.Error("Expected pool to remain cancelled")
	}
}

func TestCancelPool_InheritsParentCancellation(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	p := NewCancelPool(parent)

	ctx, cancel := p.Acquire()
	defer cancel()

	cancelParent()
	select {
	case <-ctx.Done():
	default:
		t.Error("Expected pool handles to follow parent cancellation")
	}
}
