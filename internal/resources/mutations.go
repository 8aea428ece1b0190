// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

package resources

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/aquasync/internal/models"
)

// Mutations write through the gateway and invalidate the affected entity
// families so the next read observes fresh data. They never patch the
// cache optimistically; reconciliation of the authoritative record arrives
// either from the invalidation-triggered refetch or from the push channel.

// CreateNode registers a new node and returns the created record.
func (s *Store) CreateNode(ctx context.Context, node models.Node) (models.Node, error) {
	created, err := s.mutate(ctx, http.MethodPost, "/nodes", node)
	if err != nil {
		return models.Node{}, err
	}

	var out models.Node
	if err := json.Unmarshal(created, &out); err != nil {
		return models.Node{}, fmt.Errorf("decode created node: %w", err)
	}
	s.cache.Invalidate(EntityNodes)
	s.cache.Invalidate(EntityStats)
	return out, nil
}

// UpdateNode replaces an existing node.
func (s *Store) UpdateNode(ctx context.Context, id string, node models.Node) (models.Node, error) {
	updated, err := s.mutate(ctx, http.MethodPut, "/nodes/"+id, node)
	if err != nil {
		return models.Node{}, err
	}

	var out models.Node
	if err := json.Unmarshal(updated, &out); err != nil {
		return models.Node{}, fmt.Errorf("decode updated node: %w", err)
	}
	s.cache.Invalidate(EntityNodes)
	return out, nil
}

// DeleteNode removes a node.
func (s *Store) DeleteNode(ctx context.Context, id string) error {
	if _, err := s.mutate(ctx, http.MethodDelete, "/nodes/"+id, nil); err != nil {
		return err
	}
	s.cache.Invalidate(EntityNodes)
	s.cache.Invalidate(EntityStats)
	return nil
}

// CreateCommunity registers a new community.
func (s *Store) CreateCommunity(ctx context.Context, community models.Community) (models.Community, error) {
	created, err := s.mutate(ctx, http.MethodPost, "/communities", community)
	if err != nil {
		return models.Community{}, err
	}

	var out models.Community
	if err := json.Unmarshal(created, &out); err != nil {
		return models.Community{}, fmt.Errorf("decode created community: %w", err)
	}
	s.cache.Invalidate(EntityCommunities)
	s.cache.Invalidate(EntityStats)
	return out, nil
}

// UpdateCommunity replaces an existing community.
func (s *Store) UpdateCommunity(ctx context.Context, id string, community models.Community) (models.Community, error) {
	updated, err := s.mutate(ctx, http.MethodPut, "/communities/"+id, community)
	if err != nil {
		return models.Community{}, err
	}

	var out models.Community
	if err := json.Unmarshal(updated, &out); err != nil {
		return models.Community{}, fmt.Errorf("decode updated community: %w", err)
	}
	s.cache.Invalidate(EntityCommunities)
	return out, nil
}

// DeleteCommunity removes a community.
func (s *Store) DeleteCommunity(ctx context.Context, id string) error {
	if _, err := s.mutate(ctx, http.MethodDelete, "/communities/"+id, nil); err != nil {
		return err
	}
	s.cache.Invalidate(EntityCommunities)
	s.cache.Invalidate(EntityStats)
	return nil
}

// AcknowledgeAlert marks an alert as handled.
func (s *Store) AcknowledgeAlert(ctx context.Context, id string) error {
	if _, err := s.mutate(ctx, http.MethodPost, "/alerts/"+id+"/ack", nil); err != nil {
		return err
	}
	s.cache.Invalidate(EntityAlerts)
	s.cache.Invalidate(EntityStats)
	return nil
}

// mutate runs one write through the gateway under the store's lifetime.
func (s *Store) mutate(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	if ctx == nil {
		ctx = s.ctx
	}
	return s.backend.Request(ctx, method, path, nil, body)
}
