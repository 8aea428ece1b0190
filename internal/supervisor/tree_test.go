// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

// countingService tracks starts and blocks until its context ends.
type countingService struct {
	starts  atomic.Int32
	crashed atomic.Bool
}

func (s *countingService) Serve(ctx context.Context) error {
	if s.starts.Add(1) == 1 && s.crashed.Load() {
		return errors.New("simulated crash")
	}
	<-ctx.Done()
	return ctx.Err()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTree_RunsAndStopsServices(t *testing.T) {
	tree := NewTree(quietLogger(), TreeConfig{})

	svc := &countingService{}
	tree.AddRealtimeService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for svc.starts.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Service never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected canceled shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Tree did not stop on cancel")
	}
}

func TestTree_RestartsCrashedService(t *testing.T) {
	tree := NewTree(quietLogger(), TreeConfig{
		FailureBackoff: 10 * time.Millisecond,
	})

	svc := &countingService{}
	svc.crashed.Store(true)
	tree.AddAPIService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tree.ServeBackground(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for svc.starts.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("Service was not restarted after crash, starts=%d", svc.starts.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
