// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

package querycache

import (
	"strings"
	"testing"
)

func TestNewKey_ParameterOrderIndependent(t *testing.T) {
	a := NewKey("nodes", map[string]string{"search": "tank", "region": "r1"})
	b := NewKey("nodes", map[string]string{"region": "r1", "search": "tank"})

	if a.ID() != b.ID() {
		t.Errorf("Expected identical IDs for reordered params: %q vs %q", a.ID(), b.ID())
	}
	if a.String() != b.String() {
		t.Errorf("Expected identical String for reordered params: %q vs %q", a.String(), b.String())
	}
}

func TestKey_ID(t *testing.T) {
	plain := NewKey("communities", nil)
	if plain.ID() != "communities" {
		t.Errorf("Expected parameterless ID to be the entity name, got %q", plain.ID())
	}

	withParams := NewKey("nodes", map[string]string{"search": "bore"})
	if !strings.HasPrefix(withParams.ID(), "nodes:") {
		t.Errorf("Expected parameterized ID to start with entity prefix, got %q", withParams.ID())
	}
	if withParams.ID() == plain.ID() {
		t.Error("Expected parameterized and plain keys to differ")
	}

	other := NewKey("nodes", map[string]string{"search": "tank"})
	if other.ID() == withParams.ID() {
		t.Error("Expected different parameter values to produce different IDs")
	}
}

func TestKey_String(t *testing.T) {
	k := NewKey("nodes", map[string]string{"search": "tank"})
	if k.String() != "nodes?search=tank" {
		t.Errorf("Expected readable form, got %q", k.String())
	}

	plain := NewKey("regions", map[string]string{})
	if plain.String() != "regions" {
		t.Errorf("Expected entity-only form, got %q", plain.String())
	}
}
