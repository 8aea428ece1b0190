// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

package resources

import (
	"context"
	"net/url"
	"time"

	"github.com/tomtom215/aquasync/internal/gateway"
	"github.com/tomtom215/aquasync/internal/models"
	"github.com/tomtom215/aquasync/internal/querycache"
)

// publicRetry is applied to public reference reads: transient failures are
// retried twice with backoff.
var publicRetry = querycache.RetryPolicy{MaxRetries: 2, Backoff: 500 * time.Millisecond}

// collectionQuery runs the shared accessor path for slice-valued entities.
// When optional is set, an Unauthorized response resolves to an empty
// collection instead of an error (and, being a success, is not retried).
func collectionQuery[T any](s *Store, key querycache.Key, path string, params url.Values, opts querycache.Options, optional bool) Result[[]T] {
	fetcher := func(ctx context.Context) (interface{}, error) {
		items, err := gateway.GetJSON[[]T](ctx, s.backend, path, params)
		if err != nil {
			if optional && gateway.IsUnauthorized(err) {
				return []T{}, nil
			}
			return nil, err
		}
		if items == nil {
			items = []T{}
		}
		return items, nil
	}

	snap := s.cache.Get(s.ctx, key, fetcher, opts)
	return collectionResult[T](snap)
}

// collectionResult shapes a snapshot into a nil-safe Result.
func collectionResult[T any](snap querycache.Snapshot) Result[[]T] {
	out := Result[[]T]{
		Data:        []T{},
		Loading:     snap.Loading,
		Err:         normalizeErr(snap.Err),
		LastUpdated: snap.FetchedAt,
	}
	if items, ok := snap.Value.([]T); ok {
		out.Data = items
	}
	return out
}

// Nodes returns the node collection, optionally filtered by a search term.
// Public read: works with no token present.
func (s *Store) Nodes(search string) Result[[]models.Node] {
	params := url.Values{}
	keyParams := map[string]string{}
	if search != "" {
		params.Set("search", search)
		keyParams["search"] = search
	}
	key := querycache.NewKey(EntityNodes, keyParams)
	opts := querycache.Options{StaleTime: s.stale.Nodes, Retry: publicRetry}
	return collectionQuery[models.Node](s, key, "/nodes", params, opts, false)
}

// RefreshNodes forces a fetch for the node collection, bypassing staleness.
func (s *Store) RefreshNodes(search string) Result[[]models.Node] {
	params := url.Values{}
	keyParams := map[string]string{}
	if search != "" {
		params.Set("search", search)
		keyParams["search"] = search
	}
	key := querycache.NewKey(EntityNodes, keyParams)
	opts := querycache.Options{StaleTime: s.stale.Nodes, Retry: publicRetry, Force: true}
	return collectionQuery[models.Node](s, key, "/nodes", params, opts, false)
}

// Communities returns the community collection. Public read.
func (s *Store) Communities() Result[[]models.Community] {
	key := querycache.NewKey(EntityCommunities, nil)
	opts := querycache.Options{StaleTime: s.stale.Communities, Retry: publicRetry}
	return collectionQuery[models.Community](s, key, "/communities", nil, opts, false)
}

// Regions returns the region collection. Public read.
func (s *Store) Regions() Result[[]models.Region] {
	key := querycache.NewKey(EntityRegions, nil)
	opts := querycache.Options{StaleTime: s.stale.Regions, Retry: publicRetry}
	return collectionQuery[models.Region](s, key, "/regions", nil, opts, false)
}

// ActiveAlerts returns the active alert collection. Auth-gated: with no
// usable token the result is an empty collection, not an error, and the
// fetch is never retried.
func (s *Store) ActiveAlerts() Result[[]models.Alert] {
	key := querycache.NewKey(EntityAlerts, nil)
	opts := querycache.Options{StaleTime: s.stale.Alerts, RefetchInterval: s.stale.RefetchInterval}
	return collectionQuery[models.Alert](s, key, "/alerts/active", nil, opts, true)
}

// Stats returns the dashboard aggregate. Auth-gated: Unauthorized resolves
// to zeroed counters.
func (s *Store) Stats() Result[models.DashboardStats] {
	key := querycache.NewKey(EntityStats, nil)
	opts := querycache.Options{StaleTime: s.stale.Stats, RefetchInterval: s.stale.RefetchInterval}

	fetcher := func(ctx context.Context) (interface{}, error) {
		stats, err := gateway.GetJSON[models.DashboardStats](ctx, s.backend, "/dashboard/stats", nil)
		if err != nil {
			if gateway.IsUnauthorized(err) {
				return models.DashboardStats{}, nil
			}
			return nil, err
		}
		return stats, nil
	}

	snap := s.cache.Get(s.ctx, key, fetcher, opts)
	out := Result[models.DashboardStats]{
		Loading:     snap.Loading,
		Err:         normalizeErr(snap.Err),
		LastUpdated: snap.FetchedAt,
	}
	if stats, ok := snap.Value.(models.DashboardStats); ok {
		out.Data = stats
	}
	return out
}

// WaitNodes blocks until the node collection is available (or the fetch
// settles with an error). Used by callers that need data, not a snapshot.
func (s *Store) WaitNodes(ctx context.Context, search string) ([]models.Node, error) {
	params := url.Values{}
	keyParams := map[string]string{}
	if search != "" {
		params.Set("search", search)
		keyParams["search"] = search
	}
	key := querycache.NewKey(EntityNodes, keyParams)
	opts := querycache.Options{StaleTime: s.stale.Nodes, Retry: publicRetry}

	fetcher := func(fctx context.Context) (interface{}, error) {
		items, err := gateway.GetJSON[[]models.Node](fctx, s.backend, "/nodes", params)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []models.Node{}
		}
		return items, nil
	}

	value, err := s.cache.Wait(ctx, key, fetcher, opts)
	if err != nil {
		return nil, err
	}
	items, _ := value.([]models.Node)
	return items, nil
}
