// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

// Package status exposes the daemon's operational HTTP surface: liveness,
// readiness, Prometheus metrics, and a JSON status summary of the sync
// layer. It is not a public API; it serves dashboards and probes.
package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/aquasync/internal/logging"
	"github.com/tomtom215/aquasync/internal/querycache"
	"github.com/tomtom215/aquasync/internal/realtime"
)

// HealthProber checks backend reachability. Satisfied by the gateway
// client and its breaker wrapper.
type HealthProber interface {
	Health(ctx context.Context) error
}

// Config tunes the status server.
type Config struct {
	Addr           string
	AllowedOrigins []string

	// RateLimit is requests per minute per client IP; zero disables.
	RateLimit int
}

// Server is the daemon's operational HTTP endpoint.
type Server struct {
	cfg       Config
	cache     *querycache.Cache
	backend   HealthProber
	listeners []*realtime.Listener
	http      *http.Server
}

// NewServer builds the status server. listeners may be empty when realtime
// is disabled.
func NewServer(cfg Config, cache *querycache.Cache, backend HealthProber, listeners []*realtime.Listener) *Server {
	s := &Server{
		cfg:       cfg,
		cache:     cache,
		backend:   backend,
		listeners: listeners,
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// routes assembles the chi router with the shared middleware stack.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		MaxAge:         300,
	}))
	if s.cfg.RateLimit > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RateLimit, time.Minute))
	}

	r.Get("/healthz", s.handleLive)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
	})

	return r
}

// Serve implements suture.Service: it runs the HTTP server until the
// context is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.cfg.Addr).Msg("status server listening")
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("status server shutdown")
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *Server) String() string {
	return "status-server"
}

// handleLive reports process liveness.
func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports readiness: the backend must answer its health probe.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.backend.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": "backend unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// statusPayload is the /api/v1/status response body.
type statusPayload struct {
	Cache    querycache.Stats  `json:"cache"`
	Channels map[string]string `json:"channels"`
}

// handleStatus summarizes the sync layer for dashboards.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	payload := statusPayload{
		Cache:    s.cache.GetStats(),
		Channels: make(map[string]string, len(s.listeners)),
	}
	for _, l := range s.listeners {
		state := l.State().String()
		if l.Degraded() {
			state += " (degraded)"
		}
		payload.Channels[l.String()] = state
	}
	writeJSON(w, http.StatusOK, payload)
}

// requestID tags each request with an X-Request-ID and threads it through
// the logging context.
func requestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = logging.GenerateRequestID()
			}
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
		})
	}
}

// writeJSON encodes v with the shared JSON library.
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug().Err(err).Msg("status response encode failed")
	}
}
