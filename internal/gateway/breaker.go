// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

package gateway

import (
	"context"
	"errors"
	"net/url"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/aquasync/internal/logging"
	"github.com/tomtom215/aquasync/internal/metrics"
)

// BreakerClient wraps a Client with a circuit breaker so a down backend
// sheds load instead of stacking up doomed requests.
//
// The breaker uses real time for its interval and timeout calculations.
// Tests should exercise the wrapped client directly; the breaker itself is
// covered by state-transition tests with a failing backend.
type BreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[[]byte]
	name   string
}

// NewBreakerClient wraps client in a circuit breaker.
//
// Configuration:
//   - 3 concurrent probes in half-open state
//   - 1 minute measurement window in closed state
//   - 2 minute open period before recovery probes
//   - opens at >=60% failure rate over at least 10 requests
//
// Unauthorized and plain 4xx responses do not count as failures: they are
// deterministic outcomes of the request, not backend unavailability.
func NewBreakerClient(client *Client, name string) *BreakerClient {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			if failureRatio >= 0.6 {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Str("breaker", name).
					Msg("opening circuit")
				return true
			}
			return false
		},

		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Cancellation reflects the caller, not the backend.
			if errors.Is(err, context.Canceled) {
				return true
			}
			return !Retryable(err)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &BreakerClient{client: client, cb: cb, name: name}
}

// Request implements Requester with circuit breaker protection. A rejected
// call (open circuit, half-open saturation) is reported as KindUnreachable
// so callers retry and degrade exactly as they would for a down backend.
func (b *BreakerClient) Request(ctx context.Context, method, path string, params url.Values, body interface{}) ([]byte, error) {
	payload, err := b.cb.Execute(func() ([]byte, error) {
		return b.client.Request(ctx, method, path, params, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			return nil, &Error{Kind: KindUnreachable, Err: err}
		}
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	return payload, nil
}

// Health delegates to the wrapped client; the health probe intentionally
// bypasses the breaker so recovery is observable while the circuit is open.
func (b *BreakerClient) Health(ctx context.Context) error {
	return b.client.Health(ctx)
}

// stateToFloat converts breaker state to its metric value.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts breaker state to its log label.
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
