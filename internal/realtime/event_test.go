// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/aquasync/internal/models"
	"github.com/tomtom215/aquasync/internal/querycache"
)

func seedNodes(t *testing.T, cache *querycache.Cache, key querycache.Key, nodes []models.Node) {
	t.Helper()
	_, err := cache.Wait(context.Background(), key, func(ctx context.Context) (interface{}, error) {
		return nodes, nil
	}, querycache.Options{StaleTime: time.Minute})
	if err != nil {
		t.Fatalf("Seed fetch failed: %v", err)
	}
}

func currentNodes(t *testing.T, cache *querycache.Cache, key querycache.Key) []models.Node {
	t.Helper()
	snap := cache.Get(context.Background(), key, func(ctx context.Context) (interface{}, error) {
		t.Error("Fetcher must not run on a fresh hit")
		return nil, nil
	}, querycache.Options{StaleTime: time.Minute})
	nodes, _ := snap.Value.([]models.Node)
	return nodes
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	return data
}

func TestCollectionReconciler_InsertPrepends(t *testing.T) {
	cache := querycache.New(time.Minute)
	defer cache.Close()

	key := querycache.NewKey("nodes", nil)
	seedNodes(t, cache, key, []models.Node{{ID: "n1", Name: "Tank A"}})

	handler := CollectionReconciler[models.Node](cache, "nodes")
	handler(Event{
		Entity:    "nodes",
		EventType: OpInsert,
		New:       mustMarshal(t, models.Node{ID: "n2", Name: "Borewell B"}),
	})

	nodes := currentNodes(t, cache, key)
	if len(nodes) != 2 {
		t.Fatalf("Expected 2 nodes after insert, got %d", len(nodes))
	}
	if nodes[0].ID != "n2" {
		t.Errorf("Expected inserted node prepended, got %s first", nodes[0].ID)
	}
}

func TestCollectionReconciler_InsertRedeliveryReplacesInPlace(t *testing.T) {
	cache := querycache.New(time.Minute)
	defer cache.Close()

	key := querycache.NewKey("nodes", nil)
	seedNodes(t, cache, key, []models.Node{
		{ID: "n1", Name: "Tank A"},
		{ID: "n2", Name: "Borewell B"},
	})

	handler := CollectionReconciler[models.Node](cache, "nodes")
	handler(Event{
		Entity:    "nodes",
		EventType: OpInsert,
		New:       mustMarshal(t, models.Node{ID: "n2", Name: "Borewell B (renamed)"}),
	})

	nodes := currentNodes(t, cache, key)
	if len(nodes) != 2 {
		t.Fatalf("Expected re-delivered insert to not grow the collection, got %d nodes", len(nodes))
	}
	if nodes[1].Name != "Borewell B (renamed)" {
		t.Errorf("Expected in-place replacement, got %q", nodes[1].Name)
	}
}

func TestCollectionReconciler_UpdateReplacesById(t *testing.T) {
	cache := querycache.New(time.Minute)
	defer cache.Close()

	key := querycache.NewKey("nodes", nil)
	seedNodes(t, cache, key, []models.Node{
		{ID: "n1", WaterLevel: 10},
		{ID: "n2", WaterLevel: 20},
	})

	handler := CollectionReconciler[models.Node](cache, "nodes")
	handler(Event{
		Entity:    "nodes",
		EventType: OpUpdate,
		New:       mustMarshal(t, models.Node{ID: "n2", WaterLevel: 55}),
	})

	nodes := currentNodes(t, cache, key)
	if nodes[1].WaterLevel != 55 {
		t.Errorf("Expected updated water level, got %v", nodes[1].WaterLevel)
	}
	if nodes[0].WaterLevel != 10 {
		t.Errorf("Expected untouched record to remain, got %v", nodes[0].WaterLevel)
	}
}

func TestCollectionReconciler_UpdateMissIsNoOp(t *testing.T) {
	cache := querycache.New(time.Minute)
	defer cache.Close()

	key := querycache.NewKey("nodes", nil)
	seedNodes(t, cache, key, []models.Node{{ID: "n1"}})

	handler := CollectionReconciler[models.Node](cache, "nodes")
	handler(Event{
		Entity:    "nodes",
		EventType: OpUpdate,
		New:       mustMarshal(t, models.Node{ID: "ghost"}),
	})

	nodes := currentNodes(t, cache, key)
	if len(nodes) != 1 || nodes[0].ID != "n1" {
		t.Errorf("Expected update miss to leave collection unchanged, got %v", nodes)
	}
}

func TestCollectionReconciler_DeleteIsIdempotent(t *testing.T) {
	cache := querycache.New(time.Minute)
	defer cache.Close()

	key := querycache.NewKey("nodes", nil)
	seedNodes(t, cache, key, []models.Node{{ID: "n1"}, {ID: "n2"}})

	handler := CollectionReconciler[models.Node](cache, "nodes")
	del := Event{
		Entity:    "nodes",
		EventType: OpDelete,
		Old:       mustMarshal(t, models.Node{ID: "n1"}),
	}

	handler(del)
	handler(del) // re-delivery

	nodes := currentNodes(t, cache, key)
	if len(nodes) != 1 || nodes[0].ID != "n2" {
		t.Errorf("Expected exactly one node after repeated delete, got %v", nodes)
	}
}

func TestCollectionReconciler_DeleteFallsBackToNewPayload(t *testing.T) {
	cache := querycache.New(time.Minute)
	defer cache.Close()

	key := querycache.NewKey("nodes", nil)
	seedNodes(t, cache, key, []models.Node{{ID: "n1"}})

	handler := CollectionReconciler[models.Node](cache, "nodes")
	handler(Event{
		Entity:    "nodes",
		EventType: OpDelete,
		New:       mustMarshal(t, models.Node{ID: "n1"}),
	})

	if nodes := currentNodes(t, cache, key); len(nodes) != 0 {
		t.Errorf("Expected delete via new payload, got %v", nodes)
	}
}

func TestCollectionReconciler_UnknownOperationDropped(t *testing.T) {
	cache := querycache.New(time.Minute)
	defer cache.Close()

	key := querycache.NewKey("nodes", nil)
	seedNodes(t, cache, key, []models.Node{{ID: "n1"}})

	handler := CollectionReconciler[models.Node](cache, "nodes")
	handler(Event{
		Entity:    "nodes",
		EventType: "TRUNCATE",
		New:       mustMarshal(t, models.Node{ID: "n9"}),
	})

	if nodes := currentNodes(t, cache, key); len(nodes) != 1 {
		t.Errorf("Expected unknown operation to be dropped, got %v", nodes)
	}
}

func TestCollectionReconciler_MalformedPayloadDropped(t *testing.T) {
	cache := querycache.New(time.Minute)
	defer cache.Close()

	key := querycache.NewKey("nodes", nil)
	seedNodes(t, cache, key, []models.Node{{ID: "n1"}})

	handler := CollectionReconciler[models.Node](cache, "nodes")
	handler(Event{Entity: "nodes", EventType: OpInsert, New: json.RawMessage(`{broken`)})
	handler(Event{Entity: "nodes", EventType: OpUpdate})

	if nodes := currentNodes(t, cache, key); len(nodes) != 1 {
		t.Errorf("Expected malformed events to be dropped, got %v", nodes)
	}
}

func TestCollectionReconciler_AppliesToAllParameterVariants(t *testing.T) {
	cache := querycache.New(time.Minute)
	defer cache.Close()

	all := querycache.NewKey("nodes", nil)
	filtered := querycache.NewKey("nodes", map[string]string{"search": "tank"})
	seedNodes(t, cache, all, []models.Node{{ID: "n1"}})
	seedNodes(t, cache, filtered, []models.Node{{ID: "n1"}})

	handler := CollectionReconciler[models.Node](cache, "nodes")
	handler(Event{
		Entity:    "nodes",
		EventType: OpDelete,
		Old:       mustMarshal(t, models.Node{ID: "n1"}),
	})

	if nodes := currentNodes(t, cache, all); len(nodes) != 0 {
		t.Errorf("Expected delete applied to unfiltered slot, got %v", nodes)
	}
	if nodes := currentNodes(t, cache, filtered); len(nodes) != 0 {
		t.Errorf("Expected delete applied to filtered slot, got %v", nodes)
	}
}
