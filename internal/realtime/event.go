// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

package realtime

import (
	"github.com/goccy/go-json"

	"github.com/tomtom215/aquasync/internal/logging"
	"github.com/tomtom215/aquasync/internal/metrics"
	"github.com/tomtom215/aquasync/internal/models"
	"github.com/tomtom215/aquasync/internal/querycache"
)

// Event operations as delivered on the push channel.
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// Event is one table-change notification from the push channel.
type Event struct {
	Entity    string          `json:"table"`
	EventType string          `json:"eventType"`
	New       json.RawMessage `json:"new,omitempty"`
	Old       json.RawMessage `json:"old,omitempty"`
}

// Handler consumes decoded change events.
type Handler func(Event)

// CollectionReconciler returns a Handler that applies change events for one
// entity family to every cached collection of that family.
//
// Semantics per operation:
//   - INSERT: prepend the new record; if a record with the same ID already
//     exists it is replaced in place instead (re-delivery safe).
//   - UPDATE: replace the matching record by ID; a miss is a no-op.
//   - DELETE: remove the matching record by ID; applying the same delete
//     twice leaves the collection unchanged.
//
// Unknown operations are logged at debug level and dropped.
func CollectionReconciler[T models.Identifiable](cache *querycache.Cache, entity string) Handler {
	return func(ev Event) {
		metrics.RealtimeEvents.WithLabelValues(entity, ev.EventType).Inc()

		switch ev.EventType {
		case OpInsert:
			record, ok := decodeRecord[T](ev.New, entity, ev.EventType)
			if !ok {
				return
			}
			cache.PatchEntity(entity, func(value interface{}) interface{} {
				return insertRecord(value, record)
			})
			metrics.CachePatches.WithLabelValues(entity, "insert").Inc()

		case OpUpdate:
			record, ok := decodeRecord[T](ev.New, entity, ev.EventType)
			if !ok {
				return
			}
			cache.PatchEntity(entity, func(value interface{}) interface{} {
				return updateRecord(value, record)
			})
			metrics.CachePatches.WithLabelValues(entity, "update").Inc()

		case OpDelete:
			payload := ev.Old
			if len(payload) == 0 {
				payload = ev.New
			}
			record, ok := decodeRecord[T](payload, entity, ev.EventType)
			if !ok {
				return
			}
			cache.PatchEntity(entity, func(value interface{}) interface{} {
				return deleteRecord[T](value, record.EntityID())
			})
			metrics.CachePatches.WithLabelValues(entity, "delete").Inc()

		default:
			logging.Debug().
				Str("entity", entity).
				Str("event_type", ev.EventType).
				Msg("ignoring unknown change event type")
		}
	}
}

// decodeRecord unmarshals a record payload, logging and dropping malformed
// events instead of failing the channel.
func decodeRecord[T models.Identifiable](payload json.RawMessage, entity, op string) (T, bool) {
	var record T
	if len(payload) == 0 {
		logging.Debug().Str("entity", entity).Str("op", op).Msg("change event missing record payload")
		return record, false
	}
	if err := json.Unmarshal(payload, &record); err != nil {
		logging.Warn().Err(err).Str("entity", entity).Str("op", op).Msg("failed to decode change event record")
		return record, false
	}
	return record, true
}

// insertRecord prepends record, replacing in place when the ID is already
// present.
func insertRecord[T models.Identifiable](value interface{}, record T) interface{} {
	collection, ok := value.([]T)
	if !ok {
		if value == nil {
			return []T{record}
		}
		return value
	}
	for i := range collection {
		if collection[i].EntityID() == record.EntityID() {
			out := make([]T, len(collection))
			copy(out, collection)
			out[i] = record
			return out
		}
	}
	out := make([]T, 0, len(collection)+1)
	out = append(out, record)
	out = append(out, collection...)
	return out
}

// updateRecord replaces the matching record by ID; a miss returns the
// collection unchanged.
func updateRecord[T models.Identifiable](value interface{}, record T) interface{} {
	collection, ok := value.([]T)
	if !ok {
		return value
	}
	for i := range collection {
		if collection[i].EntityID() == record.EntityID() {
			out := make([]T, len(collection))
			copy(out, collection)
			out[i] = record
			return out
		}
	}
	return collection
}

// deleteRecord removes the record with id; a miss returns the collection
// unchanged, making repeated deletes idempotent.
func deleteRecord[T models.Identifiable](value interface{}, id string) interface{} {
	collection, ok := value.([]T)
	if !ok {
		return value
	}
	for i := range collection {
		if collection[i].EntityID() == id {
			out := make([]T, 0, len(collection)-1)
			out = append(out, collection[:i]...)
			out = append(out, collection[i+1:]...)
			return out
		}
	}
	return collection
}
