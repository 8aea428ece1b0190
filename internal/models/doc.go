// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

/*
Package models defines the entity types exchanged with the telemetry backend.

All types mirror the backend's wire format: JSON field names match the REST
payloads, and every entity carries a stable string ID used for identity
matching during change-event reconciliation.

Entities:
  - Node: a monitored installation (tank, borewell, or flow sensor)
  - Community: a group of nodes serving one settlement
  - Region: an administrative grouping of communities
  - Alert: a threshold or device-health alert raised by the backend
  - DashboardStats: aggregated counters for the dashboard landing page

The package also defines the response envelope used by the backend
({status, data, meta}) and its structural detection helper.
*/
package models
