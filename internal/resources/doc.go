// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

/*
Package resources exposes per-entity accessors over the query cache, the
gateway, and the push channel.

Each query accessor binds a cache key, a fetch function, and a stale time,
and returns the cached state immediately: data (never nil for collections),
a loading flag, a normalized user-safe error string, and the last
successful fetch time. Callers never see raw transport errors or stack
traces.

Auth handling follows the resource's sensitivity:

  - Public reference reads (nodes, communities, regions) work with no token
    present; a token is attached when available.
  - Auth-gated reads (active alerts, dashboard stats) absorb Unauthorized
    into an empty/zeroed default instead of erroring, since the consumer
    may not be signed in yet during initial load. They are never retried,
    avoiding repeated 401 noise.

Mutations write through the gateway and invalidate the affected entity
families; they never patch the cache optimistically.
*/
package resources
