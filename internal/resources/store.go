// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

package resources

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/aquasync/internal/gateway"
	"github.com/tomtom215/aquasync/internal/lifecycle"
	"github.com/tomtom215/aquasync/internal/models"
	"github.com/tomtom215/aquasync/internal/querycache"
	"github.com/tomtom215/aquasync/internal/realtime"
)

// Entity family names, matching backend table names and push channel keys.
const (
	EntityNodes       = "nodes"
	EntityCommunities = "communities"
	EntityRegions     = "regions"
	EntityAlerts      = "active_alerts"
	EntityStats       = "dashboard_stats"
)

// StaleTimes carries the per-entity freshness windows.
type StaleTimes struct {
	Nodes       time.Duration
	Communities time.Duration
	Regions     time.Duration
	Alerts      time.Duration
	Stats       time.Duration

	// RefetchInterval, when positive, keeps alert and stats entries
	// refreshed on a timer even without reads. Zero disables the timer;
	// staleness-driven refetch still applies.
	RefetchInterval time.Duration
}

// DefaultStaleTimes mirrors the config defaults for library use.
func DefaultStaleTimes() StaleTimes {
	return StaleTimes{
		Nodes:       60 * time.Second,
		Communities: 5 * time.Minute,
		Regions:     10 * time.Minute,
		Alerts:      30 * time.Second,
		Stats:       30 * time.Second,
	}
}

// Result is the state a query accessor returns. Err is a normalized
// user-safe message, empty when healthy; Data is always usable (empty
// collection or zero value, never nil for slices).
type Result[T any] struct {
	Data        T
	Loading     bool
	Err         string
	LastUpdated time.Time
}

// Store binds the cache, gateway, and push channel into per-entity
// accessors for one consumer context.
//
// The store owns its fetch lifetime: Close cancels in-flight fetches,
// closes push subscriptions, and is exactly-once.
type Store struct {
	cache   *querycache.Cache
	backend gateway.Requester
	stale   StaleTimes

	push  *realtime.Manager // nil when realtime is disabled
	owner string

	ctx   context.Context
	pool  *lifecycle.CancelPool
	guard *lifecycle.Guard
}

// NewStore creates a store over cache and backend. push may be nil to run
// in polling-only mode.
func NewStore(cache *querycache.Cache, backend gateway.Requester, stale StaleTimes, push *realtime.Manager) *Store {
	pool := lifecycle.NewCancelPool(context.Background())
	ctx, _ := pool.Acquire()

	s := &Store{
		cache:   cache,
		backend: backend,
		stale:   stale,
		push:    push,
		owner:   uuid.New().String(),
		ctx:     ctx,
		pool:    pool,
		guard:   lifecycle.NewGuard(),
	}

	s.guard.RegisterCleanup(pool.CancelAll)
	if push != nil {
		s.guard.RegisterCleanup(push.CloseAll)
	}
	return s
}

// EnableRealtime opens push subscriptions for the entity families that
// benefit from low-latency reconciliation. Re-enabling replaces existing
// subscriptions atomically; it never stacks channels.
func (s *Store) EnableRealtime(entities []string) {
	if s.push == nil {
		return
	}
	for _, entity := range entities {
		switch entity {
		case EntityNodes:
			s.push.Subscribe(s.owner, EntityNodes,
				realtime.CollectionReconciler[models.Node](s.cache, EntityNodes))
		case EntityCommunities:
			s.push.Subscribe(s.owner, EntityCommunities,
				realtime.CollectionReconciler[models.Community](s.cache, EntityCommunities))
		case EntityAlerts:
			s.push.Subscribe(s.owner, EntityAlerts,
				realtime.CollectionReconciler[models.Alert](s.cache, EntityAlerts))
		}
	}
}

// PushDegraded reports whether the push channel for entity has failed
// enough consecutive connects that callers should trust polling alone.
// Entities without a subscription report false.
func (s *Store) PushDegraded(entity string) bool {
	if s.push == nil {
		return false
	}
	return s.push.Degraded(s.owner, entity)
}

// Close tears the store down exactly once: in-flight fetches are canceled
// and push subscriptions closed. The cache itself is shared and stays up.
func (s *Store) Close() {
	s.guard.Run()
}

// normalizeErr converts transport errors into the user-safe vocabulary.
// Cancellation is swallowed entirely: a torn-down consumer is not a
// failure.
func normalizeErr(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return ""
	case gateway.IsUnauthorized(err):
		return "please sign in"
	case gateway.IsUnreachable(err):
		return "temporarily unavailable"
	default:
		if k, ok := gateway.KindOf(err); ok && k == gateway.KindServerError {
			return "temporarily unavailable"
		}
		return "request failed"
	}
}
