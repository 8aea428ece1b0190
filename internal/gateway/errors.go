// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway failure.
type Kind int

const (
	// KindUnreachable covers transport failures, timeouts, and circuit
	// breaker rejections: no usable response was obtained.
	KindUnreachable Kind = iota

	// KindUnauthorized covers HTTP 401 and 403.
	KindUnauthorized

	// KindClientError covers other 4xx responses.
	KindClientError

	// KindServerError covers 5xx responses.
	KindServerError
)

// String returns the metric/log label for the kind.
func (k Kind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindUnauthorized:
		return "unauthorized"
	case KindClientError:
		return "client_error"
	case KindServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by the gateway. Callers decide per
// resource whether a given kind degrades to a default value or propagates.
type Error struct {
	Kind   Kind
	Status int    // HTTP status, 0 for transport failures
	Detail string // response body excerpt, if any
	Err    error  // underlying cause, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Status != 0:
		return fmt.Sprintf("gateway: %s (HTTP %d): %v", e.Kind, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("gateway: %s: %v", e.Kind, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("gateway: %s (HTTP %d): %s", e.Kind, e.Status, e.Detail)
	default:
		return fmt.Sprintf("gateway: %s (HTTP %d)", e.Kind, e.Status)
	}
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or (0, false) if err is not a gateway
// error.
func KindOf(err error) (Kind, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind, true
	}
	return 0, false
}

// IsUnauthorized reports whether err is a gateway 401/403.
func IsUnauthorized(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindUnauthorized
}

// IsUnreachable reports whether err is a transport-level failure.
func IsUnreachable(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindUnreachable
}

// Retryable reports whether err is worth retrying: transport failures and
// server errors are transient; auth and client errors are deterministic.
func Retryable(err error) bool {
	k, ok := KindOf(err)
	if !ok {
		return false
	}
	return k == KindUnreachable || k == KindServerError
}
