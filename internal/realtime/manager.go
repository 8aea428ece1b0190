// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

package realtime

import (
	"context"
	"sync"

	"github.com/tomtom215/aquasync/internal/logging"
)

// Subscription binds one owner to one entity channel. It is closed exactly
// once, either explicitly or when its manager shuts down.
type Subscription struct {
	owner    string
	entity   string
	listener *Listener

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Listener exposes the underlying channel for state/degradation checks.
func (s *Subscription) Listener() *Listener {
	return s.listener
}

// Close tears the subscription down: the channel is closed and any pending
// reconnect wait is canceled. Safe to call more than once; only the first
// call acts.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		logging.Debug().
			Str("owner", s.owner).
			Str("entity", s.entity).
			Msg("push subscription closed")
	})
}

// Manager enforces at-most-one channel per (owner, entity). Re-subscribing
// replaces the prior subscription atomically: the old channel is fully
// closed before the new one starts connecting.
type Manager struct {
	base ListenerConfig // URL, backoff, and token settings shared by all channels

	mu   sync.Mutex
	subs map[string]*Subscription
}

// NewManager creates a subscription manager. base.Entity is ignored; each
// Subscribe call supplies its own entity.
func NewManager(base ListenerConfig) *Manager {
	return &Manager{
		base: base,
		subs: make(map[string]*Subscription),
	}
}

// Subscribe opens a channel for (owner, entity) feeding handler. An
// existing subscription for the same pair is closed first, so two channels
// for one pair never exist simultaneously.
func (m *Manager) Subscribe(owner, entity string, handler Handler) *Subscription {
	key := owner + "\x00" + entity

	// The lock is held across the whole replacement, including the wait for
	// the prior channel to finish. Releasing it between remove and insert
	// would let two concurrent Subscribe calls for the same pair each start
	// a listener, with one stranded outside the map and unreachable by
	// Unsubscribe or CloseAll.
	m.mu.Lock()
	defer m.mu.Unlock()

	if prior := m.subs[key]; prior != nil {
		delete(m.subs, key)
		prior.Close()
	}

	cfg := m.base
	cfg.Entity = entity
	listener := NewListener(cfg, handler)

	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		owner:    owner,
		entity:   entity,
		listener: listener,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		if err := listener.Serve(ctx); err != nil && ctx.Err() == nil {
			logging.Error().Err(err).Str("entity", entity).Msg("push listener exited")
		}
	}()

	m.subs[key] = sub
	return sub
}

// Degraded reports whether the channel for (owner, entity) has failed
// enough consecutive connects to warrant polling-only operation. Pairs
// without a subscription report false.
func (m *Manager) Degraded(owner, entity string) bool {
	m.mu.Lock()
	sub := m.subs[owner+"\x00"+entity]
	m.mu.Unlock()

	return sub != nil && sub.listener.Degraded()
}

// Unsubscribe closes the subscription for (owner, entity) if one exists.
func (m *Manager) Unsubscribe(owner, entity string) {
	key := owner + "\x00" + entity

	m.mu.Lock()
	sub := m.subs[key]
	delete(m.subs, key)
	m.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

// CloseAll tears down every subscription. Subsequent Subscribe calls are
// permitted; CloseAll is a sweep, not a terminal state.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	subs := make([]*Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.subs = make(map[string]*Subscription)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}
