// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	})
	signed, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("Failed to sign test JWT: %v", err)
	}
	return signed
}

func TestStoreSource_ResolvesProviderToken(t *testing.T) {
	store := NewMemoryStore()
	src := NewStoreSource(store, "projref", false)

	valid := signedJWT(t, time.Now().Add(time.Hour))
	if err := store.Set(src.SessionKey(), valid); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok := src.Resolve()
	if !ok || got != valid {
		t.Errorf("Expected provider token resolved, got (%q, %v)", got, ok)
	}
}

func TestStoreSource_SessionKeyConvention(t *testing.T) {
	src := NewStoreSource(NewMemoryStore(), "abc123", false)
	if src.SessionKey() != "sb-abc123-auth-token" {
		t.Errorf("Unexpected session key %q", src.SessionKey())
	}
}

func TestStoreSource_ExtractsTokenFromSessionObject(t *testing.T) {
	store := NewMemoryStore()
	src := NewStoreSource(store, "projref", false)

	valid := signedJWT(t, time.Now().Add(time.Hour))
	session := `{"access_token":"` + valid + `","refresh_token":"r1","expires_in":3600}`
	store.Set(src.SessionKey(), session)

	got, ok := src.Resolve()
	if !ok || got != valid {
		t.Errorf("Expected access_token extracted from session object, got (%q, %v)", got, ok)
	}
}

func TestStoreSource_ExpiredTokenTreatedAbsent(t *testing.T) {
	store := NewMemoryStore()
	src := NewStoreSource(store, "projref", false)

	store.Set(src.SessionKey(), signedJWT(t, time.Now().Add(-time.Hour)))

	if _, ok := src.Resolve(); ok {
		t.Error("Expected expired token to resolve as absent")
	}
}

func TestStoreSource_OpaqueTokenTreatedUnexpired(t *testing.T) {
	store := NewMemoryStore()
	src := NewStoreSource(store, "projref", false)

	store.Set(src.SessionKey(), "opaque-api-key-value")

	got, ok := src.Resolve()
	if !ok || got != "opaque-api-key-value" {
		t.Errorf("Expected opaque token resolved as-is, got (%q, %v)", got, ok)
	}
}

func TestStoreSource_DevBypass(t *testing.T) {
	store := NewMemoryStore()
	store.Set(devBypassKey, DevBypassPrefix+"user-1")

	allowed := NewStoreSource(store, "", true)
	got, ok := allowed.Resolve()
	if !ok || got != DevBypassPrefix+"user-1" {
		t.Errorf("Expected dev-bypass token resolved, got (%q, %v)", got, ok)
	}

	denied := NewStoreSource(store, "", false)
	if _, ok := denied.Resolve(); ok {
		t.Error("Expected dev-bypass to be ignored when not allowed")
	}
}

func TestStoreSource_DevBypassRequiresPrefix(t *testing.T) {
	store := NewMemoryStore()
	store.Set(devBypassKey, "not-a-bypass-value")

	src := NewStoreSource(store, "", true)
	if _, ok := src.Resolve(); ok {
		t.Error("Expected unprefixed dev entry to resolve as absent")
	}
}

func TestStoreSource_ProviderWinsOverDevBypass(t *testing.T) {
	store := NewMemoryStore()
	src := NewStoreSource(store, "projref", true)

	valid := signedJWT(t, time.Now().Add(time.Hour))
	store.Set(src.SessionKey(), valid)
	store.Set(devBypassKey, DevBypassPrefix+"user-1")

	got, ok := src.Resolve()
	if !ok || got != valid {
		t.Errorf("Expected provider session to win, got (%q, %v)", got, ok)
	}
}

func TestStoreSource_EmptyStoreResolvesAbsent(t *testing.T) {
	src := NewStoreSource(NewMemoryStore(), "projref", true)
	if _, ok := src.Resolve(); ok {
		t.Error("Expected empty store to resolve no token")
	}
}

func TestStatic_Resolve(t *testing.T) {
	if tok, ok := Static("abc").Resolve(); !ok || tok != "abc" {
		t.Errorf("Expected static token, got (%q, %v)", tok, ok)
	}
	if _, ok := None.Resolve(); ok {
		t.Error("Expected None to resolve no token")
	}
}
