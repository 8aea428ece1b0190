// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

// Package config loads AquaSync configuration via Koanf v2 with layered
// sources (highest priority wins):
//
//  1. Environment variables (BACKEND_URL, REALTIME_URL, ...)
//  2. Config file (config.yaml, or CONFIG_PATH override)
//  3. Built-in defaults
//
// The merged result is validated with go-playground/validator before use.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the AquaSync daemon.
type Config struct {
	Backend  BackendConfig  `koanf:"backend"`
	Realtime RealtimeConfig `koanf:"realtime"`
	Cache    CacheConfig    `koanf:"cache"`
	Auth     AuthConfig     `koanf:"auth"`
	Status   StatusConfig   `koanf:"status"`
	Log      LogConfig      `koanf:"log"`
}

// BackendConfig describes the telemetry REST backend.
type BackendConfig struct {
	// URL is the API base including the version segment,
	// e.g. "http://localhost:8000/api/v1".
	URL string `koanf:"url" validate:"required,url"`

	// Timeout is the per-request timeout at the gateway.
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// RetryBaseDelay is the base delay for fetch retry backoff.
	RetryBaseDelay time.Duration `koanf:"retry_base_delay" validate:"gt=0"`

	// BreakerEnabled wraps the gateway in a circuit breaker.
	BreakerEnabled bool `koanf:"breaker_enabled"`
}

// RealtimeConfig describes the WebSocket push channel.
type RealtimeConfig struct {
	// URL is the push endpoint, e.g. "ws://localhost:8000/realtime".
	// Empty disables realtime; hooks fall back to pure polling.
	URL string `koanf:"url" validate:"omitempty,uri"`

	// Entities lists the entity families to subscribe to.
	Entities []string `koanf:"entities"`

	// ReconnectBase is the initial reconnect backoff delay.
	ReconnectBase time.Duration `koanf:"reconnect_base" validate:"gt=0"`

	// ReconnectMax caps the reconnect backoff delay.
	ReconnectMax time.Duration `koanf:"reconnect_max" validate:"gtefield=ReconnectBase"`

	// DegradedAfter is the number of consecutive failed connect attempts
	// after which the listener reports degraded and hooks poll only.
	DegradedAfter int `koanf:"degraded_after" validate:"gt=0"`
}

// CacheConfig tunes the query cache.
type CacheConfig struct {
	// Stale times per entity family. Reads within the window are served
	// from cache without a network call.
	NodesStaleTime     time.Duration `koanf:"nodes_stale_time" validate:"gt=0"`
	CommunityStaleTime time.Duration `koanf:"community_stale_time" validate:"gt=0"`
	RegionStaleTime    time.Duration `koanf:"region_stale_time" validate:"gt=0"`
	AlertsStaleTime    time.Duration `koanf:"alerts_stale_time" validate:"gt=0"`
	StatsStaleTime     time.Duration `koanf:"stats_stale_time" validate:"gt=0"`

	// RefetchInterval re-triggers background fetches on a timer for
	// entries that opt in. Zero disables interval refetching.
	RefetchInterval time.Duration `koanf:"refetch_interval"`

	// MaxIdle evicts entries with no retained consumers after this period.
	MaxIdle time.Duration `koanf:"max_idle" validate:"gt=0"`
}

// AuthConfig describes the session-store token source.
type AuthConfig struct {
	// SessionStorePath is the BadgerDB directory for the persistent
	// session store. Empty selects the in-memory store.
	SessionStorePath string `koanf:"session_store_path"`

	// ProjectRef is the auth provider's project reference, used to derive
	// the provider session key ("sb-<ref>-auth-token").
	ProjectRef string `koanf:"project_ref"`

	// DevBypassAllowed accepts dev-bypass tokens ("dev-bypass:<id>").
	// Never enable outside local development.
	DevBypassAllowed bool `koanf:"dev_bypass_allowed"`
}

// StatusConfig describes the daemon's operational HTTP endpoint.
type StatusConfig struct {
	Addr           string   `koanf:"addr" validate:"required"`
	AllowedOrigins []string `koanf:"allowed_origins"`

	// RateLimit is requests per minute per client IP. Zero disables.
	RateLimit int `koanf:"rate_limit" validate:"gte=0"`
}

// LogConfig mirrors logging.Config for file/env configuration.
type LogConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
}

// defaultConfig returns a Config with all defaults applied. Defaults are
// loaded first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:            "http://localhost:8000/api/v1",
			Timeout:        12 * time.Second,
			RetryBaseDelay: 500 * time.Millisecond,
			BreakerEnabled: true,
		},
		Realtime: RealtimeConfig{
			URL:           "",
			Entities:      []string{"nodes", "alerts"},
			ReconnectBase: 2 * time.Second,
			ReconnectMax:  32 * time.Second,
			DegradedAfter: 5,
		},
		Cache: CacheConfig{
			NodesStaleTime:     60 * time.Second,
			CommunityStaleTime: 5 * time.Minute,
			RegionStaleTime:    10 * time.Minute,
			AlertsStaleTime:    30 * time.Second,
			StatsStaleTime:     30 * time.Second,
			RefetchInterval:    0,
			MaxIdle:            15 * time.Minute,
		},
		Auth: AuthConfig{
			SessionStorePath: "",
			ProjectRef:       "",
			DevBypassAllowed: false,
		},
		Status: StatusConfig{
			Addr:           ":9290",
			AllowedOrigins: []string{"*"},
			RateLimit:      120,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

var validate = validator.New()

// Validate checks the merged configuration for consistency.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if c.Auth.DevBypassAllowed && c.Auth.ProjectRef == "" {
		logWarnDevBypass()
	}
	return nil
}
