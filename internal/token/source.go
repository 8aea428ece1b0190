// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/aquasync/internal/logging"
)

// DevBypassPrefix marks a development-bypass token value.
const DevBypassPrefix = "dev-bypass:"

// devBypassKey is the session-store key the dev convention uses.
const devBypassKey = "aquasync-dev-token"

// Source resolves the bearer token for outbound requests.
//
// Resolve never returns an error for a missing token: requests without a
// credential proceed unauthenticated and the gateway classifies any
// resulting 401/403, letting each resource degrade on its own terms.
type Source interface {
	// Resolve returns the bearer token and true, or ("", false) when no
	// usable token exists.
	Resolve() (string, bool)
}

// StoreSource resolves tokens from a SessionStore under the provider key
// convention, optionally falling back to the dev-bypass convention.
type StoreSource struct {
	store            SessionStore
	projectRef       string
	devBypassAllowed bool
}

// NewStoreSource creates a token source over store. projectRef derives the
// provider session key; devBypassAllowed accepts dev-bypass values.
func NewStoreSource(store SessionStore, projectRef string, devBypassAllowed bool) *StoreSource {
	return &StoreSource{
		store:            store,
		projectRef:       projectRef,
		devBypassAllowed: devBypassAllowed,
	}
}

// SessionKey returns the provider session key for the configured project.
func (s *StoreSource) SessionKey() string {
	return fmt.Sprintf("sb-%s-auth-token", s.projectRef)
}

// Resolve implements Source.
//
// Provider sessions win over dev-bypass values when both exist; the two
// origins are mutually exclusive in practice (a signed-in browser session
// never also carries a bypass token).
func (s *StoreSource) Resolve() (string, bool) {
	if s.projectRef != "" {
		if tok, ok := s.providerToken(); ok {
			return tok, true
		}
	}
	if s.devBypassAllowed {
		if tok, ok := s.devBypassToken(); ok {
			return tok, true
		}
	}
	return "", false
}

// providerToken reads and validates the provider session entry.
func (s *StoreSource) providerToken() (string, bool) {
	raw, ok, err := s.store.Get(s.SessionKey())
	if err != nil {
		logging.Warn().Err(err).Msg("session store read failed; proceeding unauthenticated")
		return "", false
	}
	if !ok {
		return "", false
	}

	tok := extractAccessToken(raw)
	if tok == "" {
		return "", false
	}
	if expired(tok) {
		logging.Debug().Msg("provider session token expired; proceeding unauthenticated")
		return "", false
	}
	return tok, true
}

// devBypassToken reads the dev-bypass entry and checks its prefix.
func (s *StoreSource) devBypassToken() (string, bool) {
	raw, ok, err := s.store.Get(devBypassKey)
	if err != nil || !ok {
		return "", false
	}
	if !strings.HasPrefix(raw, DevBypassPrefix) {
		return "", false
	}
	return raw, true
}

// extractAccessToken handles both storage shapes for a provider session:
// the raw JWT string, or the provider's JSON session object with an
// "access_token" member.
func extractAccessToken(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return trimmed
	}
	var session struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal([]byte(trimmed), &session); err != nil {
		return ""
	}
	return session.AccessToken
}

// expired reports whether tok is a JWT whose exp claim has passed.
//
// The signature is deliberately not verified: the backend is the verifier;
// this check only avoids attaching a credential that is certain to be
// rejected. Opaque (non-JWT) tokens are treated as unexpired.
func expired(tok string) bool {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tok, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}

// Static is a Source that always returns the same token. Useful for tests
// and for wiring a token obtained out of band.
type Static string

// Resolve implements Source.
func (s Static) Resolve() (string, bool) {
	return string(s), s != ""
}

// None is a Source with no token.
var None Source = Static("")
