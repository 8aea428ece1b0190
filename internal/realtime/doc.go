// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

/*
Package realtime maintains the WebSocket push channel and reconciles
table-change events into the query cache.

# Channel lifecycle

Each Listener owns one channel for one entity family and walks the state
machine Closed -> Connecting -> Open -> (Reconnecting | Closed). Reconnects
back off exponentially from a base delay to a cap, with a rate-limiter
floor so a server that accepts and immediately drops connections cannot
spin the loop. Reconnect attempts are unbounded; after a configured number
of consecutive failures the listener reports itself degraded so resource
hooks fall back to pure polling.

# Reconciliation

Events arrive as {eventType, new, old}. INSERT prepends the record to the
cached collection, UPDATE replaces the matching record by ID (a miss is a
no-op), DELETE removes by ID (idempotent). Unknown event types are logged
and ignored. All reconciliation goes through the cache's patch operation,
so freshness deadlines are preserved and patches racing an in-flight fetch
are queued rather than lost.

# Ownership

The Manager enforces at-most-one channel per (owner, entity): re-subscribing
replaces the prior subscription atomically, closing the old channel before
the new one opens.
*/
package realtime
