// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

/*
Package querycache owns every cached resource value and mediates all reads
and writes to them.

# Overview

Each logical resource is addressed by a Key (entity name plus canonicalized
parameters). A read returns the current snapshot immediately and, when the
entry is missing or past its freshness deadline, starts at most one
background fetch for that key; concurrent readers join the in-flight fetch
instead of issuing their own (coalescing).

# Ordering

Every fetch issued for a key carries a monotonically increasing sequence
number. A completion whose sequence is lower than the newest issued sequence
for that key is discarded: the newest request always wins, regardless of
completion order. Interval-driven refetches and staleness-driven fetches go
through the same path, so the sequence number is the single arbiter between
them.

# Push reconciliation

Patch applies a pure transformation to a cached value without touching the
freshness deadline. If a fetch is in flight for the key, the patch is queued
and re-applied on top of the fetch result when it lands, so neither the
fetch nor the patch is lost.

# Lifecycle

Entries are reference counted via Retain/Release; unreferenced entries are
evicted by a janitor after a maximum idle period. Instances are independent:
construct one per process (or per test) and Close it when done.
*/
package querycache
