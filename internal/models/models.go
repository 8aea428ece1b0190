// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

package models

import "time"

// NodeType identifies the kind of installation a node monitors.
type NodeType string

const (
	NodeTypeTank     NodeType = "tank"
	NodeTypeBorewell NodeType = "borewell"
	NodeTypeFlow     NodeType = "flow"
)

// Node is a monitored water-infrastructure installation.
//
// Telemetry fields (WaterLevel, FlowRate, BatteryPct) hold the latest
// reading the backend has aggregated from ThingSpeak; they are zero when the
// device has never reported.
type Node struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        NodeType  `json:"type"`
	CommunityID string    `json:"community_id"`
	ChannelID   string    `json:"channel_id"` // ThingSpeak channel
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	WaterLevel  float64   `json:"water_level"`
	FlowRate    float64   `json:"flow_rate"`
	BatteryPct  float64   `json:"battery_pct"`
	Online      bool      `json:"online"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Community is a settlement served by a set of nodes.
type Community struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	RegionID   string `json:"region_id"`
	Population int    `json:"population"`
	NodeCount  int    `json:"node_count"`
}

// Region is an administrative grouping of communities.
type Region struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

// AlertSeverity ranks an alert for display ordering.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is a threshold or device-health alert raised by the backend.
type Alert struct {
	ID        string        `json:"id"`
	NodeID    string        `json:"node_id"`
	Severity  AlertSeverity `json:"severity"`
	Message   string        `json:"message"`
	Active    bool          `json:"active"`
	CreatedAt time.Time     `json:"created_at"`
}

// DashboardStats holds the aggregated counters for the dashboard landing page.
type DashboardStats struct {
	TotalNodes       int     `json:"total_nodes"`
	OnlineNodes      int     `json:"online_nodes"`
	TotalCommunities int     `json:"total_communities"`
	ActiveAlerts     int     `json:"active_alerts"`
	AvgWaterLevel    float64 `json:"avg_water_level"`
	TotalFlowToday   float64 `json:"total_flow_today"`
}

// Identifiable is implemented by every entity with a stable string ID.
// Change-event reconciliation matches records through this interface.
type Identifiable interface {
	EntityID() string
}

// EntityID implements Identifiable.
func (n Node) EntityID() string { return n.ID }

// EntityID implements Identifiable.
func (c Community) EntityID() string { return c.ID }

// EntityID implements Identifiable.
func (r Region) EntityID() string { return r.ID }

// EntityID implements Identifiable.
func (a Alert) EntityID() string { return a.ID }
