// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

package querycache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/aquasync/internal/gateway"
	"github.com/tomtom215/aquasync/internal/logging"
	"github.com/tomtom215/aquasync/internal/metrics"
)

// ErrClosed is returned by operations on a closed cache.
var ErrClosed = errors.New("querycache: cache closed")

// janitorInterval is how often unreferenced idle entries are swept.
const janitorInterval = time.Minute

// Fetcher loads the authoritative value for one key.
type Fetcher func(ctx context.Context) (interface{}, error)

// RetryPolicy bounds how a failed fetch is retried. Zero value means no
// retries. Deterministic failures (Unauthorized, plain 4xx) are never
// retried regardless of MaxRetries.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration // base delay, doubled each retry
}

// Options tune one read.
type Options struct {
	// StaleTime is how long a successful fetch stays fresh.
	StaleTime time.Duration

	// Retry is applied inside the background fetch.
	Retry RetryPolicy

	// RefetchInterval re-triggers a background fetch on a timer,
	// regardless of staleness. Zero disables the timer.
	RefetchInterval time.Duration

	// Force bypasses the staleness check (manual refresh). Coalescing
	// still applies: a force read joins an in-flight fetch.
	Force bool
}

// Snapshot is the immediately returned state of a cache slot.
type Snapshot struct {
	// Value is the last successfully fetched (and patched) value, nil if
	// no fetch has ever succeeded.
	Value interface{}

	// FetchedAt is the time of the last successful fetch.
	FetchedAt time.Time

	// Err is the last fetch error after retry exhaustion, nil after any
	// success. A stale Value remains readable alongside a non-nil Err.
	Err error

	// Loading is true while no value has ever been produced and a fetch
	// is in flight.
	Loading bool

	// Fresh is true when the value is within its staleness window.
	Fresh bool
}

// fetch is one in-flight load. done is closed exactly once when the fetch
// settles; waiters re-read the entry afterwards.
type fetch struct {
	seq  uint64
	done chan struct{}
}

// entry is one cache slot. All fields are guarded by Cache.mu.
type entry struct {
	key        Key
	value      interface{}
	hasValue   bool
	fetchedAt  time.Time
	freshUntil time.Time
	lastErr    error

	seq      uint64 // newest issued fetch sequence
	inflight *fetch

	// pendingPatches queue while a fetch is in flight and are re-applied
	// on top of the fetch result, so a patch racing a fetch is never lost.
	pendingPatches []func(interface{}) interface{}

	refs       int
	lastAccess time.Time

	// Last read parameters, kept so interval refetches can re-issue the
	// fetch without a consumer present.
	fetcher Fetcher
	opts    Options

	tickerStop chan struct{}
}

// Cache owns all entries. Construct with New, tear down with Close;
// instances are fully independent.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	maxIdle time.Duration

	closed   bool
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates an empty cache. maxIdle bounds how long an unreferenced entry
// survives without a read; zero or negative selects 15 minutes.
func New(maxIdle time.Duration) *Cache {
	if maxIdle <= 0 {
		maxIdle = 15 * time.Minute
	}
	c := &Cache{
		entries: make(map[string]*entry),
		maxIdle: maxIdle,
		stopCh:  make(chan struct{}),
	}

	c.wg.Add(1)
	go c.janitorLoop()

	return c
}

// Get returns the current snapshot for key and, when the entry is missing
// or stale (or opts.Force is set), starts at most one background fetch.
// Concurrent calls for the same key share a single fetch.
//
// The supplied context governs the background fetch this call starts; a
// read that merely joins an existing fetch does not extend or shorten that
// fetch's lifetime.
func (c *Cache) Get(ctx context.Context, key Key, fetcher Fetcher, opts Options) Snapshot {
	snap, _ := c.read(ctx, key, fetcher, opts)
	return snap
}

// Wait blocks until the fetch the read observes settles, then returns the
// resulting value and error. A fresh cached value returns immediately. If
// the joined fetch is superseded, Wait follows the newer fetch.
func (c *Cache) Wait(ctx context.Context, key Key, fetcher Fetcher, opts Options) (interface{}, error) {
	for {
		snap, f := c.read(ctx, key, fetcher, opts)
		if f == nil {
			return snap.Value, snap.Err
		}

		select {
		case <-ctx.Done():
			return snap.Value, ctx.Err()
		case <-f.done:
		}

		c.mu.Lock()
		e := c.entries[key.ID()]
		superseded := e != nil && e.seq > f.seq
		var value interface{}
		var lastErr error
		if e != nil {
			value, lastErr = e.value, e.lastErr
		}
		c.mu.Unlock()

		if superseded {
			// A newer fetch exists; join it on the next iteration
			// without issuing another one.
			opts.Force = false
			continue
		}
		return value, lastErr
	}
}

// read is the shared Get/Wait path. It returns the snapshot and the fetch
// the caller observes (started or joined), nil when none is in flight.
func (c *Cache) read(ctx context.Context, key Key, fetcher Fetcher, opts Options) (Snapshot, *fetch) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Snapshot{Err: ErrClosed}, nil
	}

	id := key.ID()
	e := c.entries[id]
	if e == nil {
		e = &entry{key: key}
		c.entries[id] = e
		metrics.CacheEntries.Set(float64(len(c.entries)))
	}
	e.lastAccess = now
	e.fetcher = fetcher
	e.opts = opts
	c.ensureTickerLocked(e)

	fresh := e.hasValue && now.Before(e.freshUntil)
	snap := c.snapshotLocked(e, fresh)

	if fresh && !opts.Force {
		metrics.CacheHits.WithLabelValues(key.Entity).Inc()
		return snap, nil
	}

	if e.inflight != nil {
		metrics.CacheCoalesced.WithLabelValues(key.Entity).Inc()
		return snap, e.inflight
	}

	metrics.CacheMisses.WithLabelValues(key.Entity).Inc()
	f := c.startFetchLocked(ctx, e, fetcher, opts)
	snap.Loading = !e.hasValue
	return snap, f
}

// startFetchLocked issues a new fetch for e. Caller holds c.mu.
func (c *Cache) startFetchLocked(ctx context.Context, e *entry, fetcher Fetcher, opts Options) *fetch {
	e.seq++
	f := &fetch{seq: e.seq, done: make(chan struct{})}
	e.inflight = f

	id := e.key.ID()
	c.wg.Add(1)
	go c.runFetch(ctx, id, e.key, f, fetcher, opts)
	return f
}

// runFetch executes one fetch with retries, then applies the completion
// under the supersession rules.
func (c *Cache) runFetch(ctx context.Context, id string, key Key, f *fetch, fetcher Fetcher, opts Options) {
	defer c.wg.Done()
	defer close(f.done)

	value, err := c.fetchWithRetry(ctx, key, fetcher, opts.Retry)

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[id]
	if e == nil || c.closed {
		return // evicted or torn down while fetching
	}
	if e.inflight == f {
		e.inflight = nil
	}

	// Supersession: a newer fetch was issued for this key while ours ran.
	// Its completion is authoritative; ours is discarded unseen.
	if f.seq < e.seq {
		metrics.CacheSuperseded.WithLabelValues(key.Entity).Inc()
		logging.Trace().Str("key", key.String()).Msg("discarding superseded fetch result")
		return
	}

	// Cancellation means the owning consumer is gone: no state update.
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return
	}

	if err != nil {
		e.lastErr = err
		c.applyPendingPatchesLocked(e)
		return
	}

	now := time.Now()
	e.value = value
	e.hasValue = true
	e.lastErr = nil
	e.fetchedAt = now
	e.freshUntil = now.Add(opts.StaleTime)
	c.applyPendingPatchesLocked(e)
}

// fetchWithRetry runs fetcher under the retry policy. Deterministic
// failures stop immediately; transient ones back off and retry.
func (c *Cache) fetchWithRetry(ctx context.Context, key Key, fetcher Fetcher, policy RetryPolicy) (interface{}, error) {
	backoff := policy.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		value, err := fetcher(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if attempt >= policy.MaxRetries || !gateway.Retryable(err) {
			return nil, lastErr
		}

		delay := backoff * time.Duration(1<<uint(attempt))
		logging.Debug().
			Str("key", key.String()).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(err).
			Msg("fetch failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.stopCh:
			return nil, ErrClosed
		}
	}
}

// applyPendingPatchesLocked drains queued patches in arrival order.
// Caller holds c.mu.
func (c *Cache) applyPendingPatchesLocked(e *entry) {
	if len(e.pendingPatches) == 0 {
		return
	}
	if e.hasValue {
		for _, patch := range e.pendingPatches {
			e.value = patch(e.value)
		}
	}
	e.pendingPatches = nil
}

// snapshotLocked copies e's visible state. Caller holds c.mu.
func (c *Cache) snapshotLocked(e *entry, fresh bool) Snapshot {
	return Snapshot{
		Value:     e.value,
		FetchedAt: e.fetchedAt,
		Err:       e.lastErr,
		Loading:   !e.hasValue && e.inflight != nil,
		Fresh:     fresh,
	}
}

// Invalidate marks every entry of the given entity stale. The next read
// triggers a fetch; Invalidate itself never fetches, so keys nobody is
// observing stay quiet. Returns the number of entries marked.
func (c *Cache) Invalidate(entity string) int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	marked := 0
	for _, e := range c.entries {
		if e.key.Entity == entity {
			e.freshUntil = now
			marked++
		}
	}
	return marked
}

// InvalidateKey marks a single slot stale.
func (c *Cache) InvalidateKey(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[key.ID()]
	if e == nil {
		return false
	}
	e.freshUntil = time.Now()
	return true
}

// Patch applies a pure transformation to the cached value of key, keeping
// the freshness deadline untouched (a patch does not restart the staleness
// clock). If a fetch is in flight, the patch is queued and re-applied on
// top of the fetch result. Returns false when the key has no entry.
func (c *Cache) Patch(key Key, fn func(interface{}) interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[key.ID()]
	if e == nil {
		return false
	}

	if e.inflight != nil {
		e.pendingPatches = append(e.pendingPatches, fn)
		return true
	}
	if e.hasValue {
		e.value = fn(e.value)
	}
	return true
}

// PatchEntity applies fn to every entry of the entity family. Push events
// carry no parameter tuple, so reconciliation targets all slots whose
// entity matches. Returns the number of entries patched or queued.
func (c *Cache) PatchEntity(entity string, fn func(interface{}) interface{}) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	patched := 0
	for _, e := range c.entries {
		if e.key.Entity != entity {
			continue
		}
		if e.inflight != nil {
			e.pendingPatches = append(e.pendingPatches, fn)
		} else if e.hasValue {
			e.value = fn(e.value)
		} else {
			continue
		}
		patched++
	}
	return patched
}

// Retain marks key as held by a consumer, exempting it from idle eviction.
func (c *Cache) Retain(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[key.ID()]
	if e == nil {
		e = &entry{key: key, lastAccess: time.Now()}
		c.entries[key.ID()] = e
		metrics.CacheEntries.Set(float64(len(c.entries)))
	}
	e.refs++
}

// Release drops one consumer reference for key.
func (c *Cache) Release(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[key.ID()]
	if e == nil {
		return
	}
	if e.refs > 0 {
		e.refs--
	}
	e.lastAccess = time.Now()
}

// Len returns the current number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats is a point-in-time view for the status endpoint.
type Stats struct {
	Entries  int       `json:"entries"`
	Inflight int       `json:"inflight"`
	OldestAt time.Time `json:"oldest_fetch,omitempty"`
}

// GetStats returns a snapshot of cache occupancy.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Entries: len(c.entries)}
	for _, e := range c.entries {
		if e.inflight != nil {
			s.Inflight++
		}
		if e.hasValue && (s.OldestAt.IsZero() || e.fetchedAt.Before(s.OldestAt)) {
			s.OldestAt = e.fetchedAt
		}
	}
	return s
}

// ensureTickerLocked starts the interval refetch timer for e when its
// options ask for one. Caller holds c.mu.
func (c *Cache) ensureTickerLocked(e *entry) {
	if e.opts.RefetchInterval <= 0 || e.tickerStop != nil {
		return
	}

	stop := make(chan struct{})
	e.tickerStop = stop
	interval := e.opts.RefetchInterval
	key := e.key

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.intervalRefetch(key)
			case <-stop:
				return
			case <-c.stopCh:
				return
			}
		}
	}()
}

// intervalRefetch re-issues the fetch for key unconditionally. It rides
// the normal read path, so coalescing and supersession apply: a tick while
// a staleness-triggered fetch is in flight joins it instead of racing it.
func (c *Cache) intervalRefetch(key Key) {
	c.mu.Lock()
	e := c.entries[key.ID()]
	if e == nil || c.closed || e.fetcher == nil {
		c.mu.Unlock()
		return
	}
	fetcher := e.fetcher
	opts := e.opts
	c.mu.Unlock()

	opts.Force = true
	c.Get(context.Background(), key, fetcher, opts)
}

// janitorLoop evicts unreferenced entries past the idle limit.
func (c *Cache) janitorLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.evictIdle()
		case <-c.stopCh:
			return
		}
	}
}

// evictIdle removes entries with no retained consumers that have not been
// read within maxIdle. Entries with an in-flight fetch are left alone.
func (c *Cache) evictIdle() {
	cutoff := time.Now().Add(-c.maxIdle)

	c.mu.Lock()
	defer c.mu.Unlock()

	for id, e := range c.entries {
		if e.refs > 0 || e.inflight != nil || e.lastAccess.After(cutoff) {
			continue
		}
		if e.tickerStop != nil {
			close(e.tickerStop)
		}
		delete(c.entries, id)
	}
	metrics.CacheEntries.Set(float64(len(c.entries)))
}

// Close tears the cache down: stops the janitor and every refetch timer,
// drops all entries, and waits for in-flight fetch goroutines to finish.
// Reads after Close return ErrClosed.
func (c *Cache) Close() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		for _, e := range c.entries {
			if e.tickerStop != nil {
				close(e.tickerStop)
			}
		}
		c.entries = make(map[string]*entry)
		c.mu.Unlock()

		close(c.stopCh)
		c.wg.Wait()
		metrics.CacheEntries.Set(0)
	})
}
