// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

// Package main is the entry point for the AquaSync daemon.
//
// aquasyncd keeps a local cache of water-infrastructure telemetry entities
// (nodes, communities, regions, alerts, dashboard stats) consistent with
// the REST backend and its WebSocket change feed, and exposes an
// operational HTTP surface (/healthz, /readyz, /metrics, /api/v1/status).
//
// Initialization order:
//
//  1. Configuration (Koanf v2: defaults -> config.yaml -> env vars)
//  2. Logging (zerolog, JSON or console)
//  3. Session store (BadgerDB when auth.session_store_path is set)
//  4. Gateway (bearer attachment, envelope unwrap, circuit breaker)
//  5. Query cache and resource store (warm reads with interval refetch)
//  6. Realtime listeners (one supervised channel per entity family)
//  7. Status HTTP server
//
// Shutdown on SIGINT/SIGTERM tears everything down exactly once through a
// lifecycle guard: supervision tree stops, cache closes, session store
// closes.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/aquasync/internal/config"
	"github.com/tomtom215/aquasync/internal/gateway"
	"github.com/tomtom215/aquasync/internal/lifecycle"
	"github.com/tomtom215/aquasync/internal/logging"
	"github.com/tomtom215/aquasync/internal/models"
	"github.com/tomtom215/aquasync/internal/querycache"
	"github.com/tomtom215/aquasync/internal/realtime"
	"github.com/tomtom215/aquasync/internal/resources"
	"github.com/tomtom215/aquasync/internal/status"
	"github.com/tomtom215/aquasync/internal/supervisor"
	"github.com/tomtom215/aquasync/internal/token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("configuration load failed")
	}

	logging.Init(logging.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Timestamp: true,
	})
	logging.Info().Msg("aquasyncd starting")

	guard := lifecycle.NewGuard()
	defer guard.Run()

	// Session store: persistent when a path is configured.
	var store token.SessionStore
	if cfg.Auth.SessionStorePath != "" {
		badgerStore, err := token.OpenBadgerStore(cfg.Auth.SessionStorePath)
		if err != nil {
			logging.Fatal().Err(err).Msg("session store open failed")
		}
		store = badgerStore
	} else {
		store = token.NewMemoryStore()
	}
	guard.RegisterCleanup(func() {
		if err := store.Close(); err != nil {
			logging.Warn().Err(err).Msg("session store close failed")
		}
	})

	tokens := token.NewStoreSource(store, cfg.Auth.ProjectRef, cfg.Auth.DevBypassAllowed)

	// Gateway, optionally behind a circuit breaker.
	client := gateway.New(cfg.Backend.URL, cfg.Backend.Timeout, tokens)
	var backend gateway.Requester = client
	prober := status.HealthProber(client)
	if cfg.Backend.BreakerEnabled {
		breaker := gateway.NewBreakerClient(client, "telemetry-backend")
		backend = breaker
		prober = breaker
	}

	cache := querycache.New(cfg.Cache.MaxIdle)
	guard.RegisterCleanup(cache.Close)

	resourceStore := resources.NewStore(cache, backend, resources.StaleTimes{
		Nodes:       cfg.Cache.NodesStaleTime,
		Communities: cfg.Cache.CommunityStaleTime,
		Regions:     cfg.Cache.RegionStaleTime,
		Alerts:      cfg.Cache.AlertsStaleTime,
		Stats:       cfg.Cache.StatsStaleTime,

		RefetchInterval: cfg.Cache.RefetchInterval,
	}, nil)
	guard.RegisterCleanup(resourceStore.Close)

	// Realtime listeners, one per configured entity family, supervised.
	listeners := buildListeners(cfg, cache, tokens)

	tree := supervisor.NewTree(
		slog.New(slog.NewJSONHandler(os.Stderr, nil)),
		supervisor.TreeConfig{},
	)
	for _, l := range listeners {
		tree.AddRealtimeService(l)
	}
	tree.AddAPIService(status.NewServer(status.Config{
		Addr:           cfg.Status.Addr,
		AllowedOrigins: cfg.Status.AllowedOrigins,
		RateLimit:      cfg.Status.RateLimit,
	}, cache, prober, listeners))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	warmCache(resourceStore)

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("supervision tree exited")
	}

	logging.Info().Msg("aquasyncd shutting down")
	guard.Run()
}

// buildListeners creates a supervised push listener per configured entity,
// each reconciling directly into the shared cache.
func buildListeners(cfg *config.Config, cache *querycache.Cache, tokens token.Source) []*realtime.Listener {
	if cfg.Realtime.URL == "" {
		logging.Info().Msg("realtime disabled; polling only")
		return nil
	}

	base := realtime.ListenerConfig{
		URL:           cfg.Realtime.URL,
		ReconnectBase: cfg.Realtime.ReconnectBase,
		ReconnectMax:  cfg.Realtime.ReconnectMax,
		DegradedAfter: cfg.Realtime.DegradedAfter,
	}
	if tok, ok := tokens.Resolve(); ok {
		base.Token = tok
	}

	var listeners []*realtime.Listener
	for _, entity := range cfg.Realtime.Entities {
		lc := base
		lc.Entity = entity

		var handler realtime.Handler
		switch entity {
		case resources.EntityNodes:
			handler = realtime.CollectionReconciler[models.Node](cache, entity)
		case resources.EntityCommunities:
			handler = realtime.CollectionReconciler[models.Community](cache, entity)
		case resources.EntityAlerts:
			handler = realtime.CollectionReconciler[models.Alert](cache, entity)
		default:
			logging.Warn().Str("entity", entity).Msg("no reconciler for entity; skipping channel")
			continue
		}
		listeners = append(listeners, realtime.NewListener(lc, handler))
	}
	return listeners
}

// warmCache issues the initial reads so the status endpoint and push
// reconciliation have collections to work against from the start.
func warmCache(store *resources.Store) {
	store.Nodes("")
	store.Communities()
	store.Regions()
	store.ActiveAlerts()
	store.Stats()
}

// Interface satisfaction checks for supervised services.
var (
	_ suture.Service = (*realtime.Listener)(nil)
	_ suture.Service = (*status.Server)(nil)
)
