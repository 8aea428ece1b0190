// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

package querycache

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// Key addresses one cached resource: an entity family plus the parameters
// of the read. Two reads with the same entity and parameters share one
// cache slot regardless of parameter order.
type Key struct {
	Entity string
	params string // canonicalized "k=v&k=v" form
}

// NewKey builds a Key for entity with the given parameters. Parameters are
// canonicalized by sorting keys, so insertion order never splits slots.
func NewKey(entity string, params map[string]string) Key {
	if len(params) == 0 {
		return Key{Entity: entity}
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(params[name])
	}
	return Key{Entity: entity, params: b.String()}
}

// ID returns the canonical cache slot identifier. Parameters are hashed so
// identifiers stay compact for arbitrary search strings.
func (k Key) ID() string {
	if k.params == "" {
		return k.Entity
	}
	hash := sha256.Sum256([]byte(k.params))
	return fmt.Sprintf("%s:%x", k.Entity, hash[:16])
}

// String returns a human-readable form for logs.
func (k Key) String() string {
	if k.params == "" {
		return k.Entity
	}
	return k.Entity + "?" + k.params
}
