// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

package models

import "github.com/goccy/go-json"

// Envelope is the backend's standard response wrapper.
//
// Most endpoints wrap their payload as {status, data, meta}; a handful of
// legacy endpoints return bare JSON. UnwrapEnvelope detects the wrapper
// structurally so callers never need to know which kind they hit.
type Envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Meta   json.RawMessage `json:"meta,omitempty"`
}

// envelopeData detects the wrapper shape without committing to a payload
// type. Decoding into a raw field map keeps key presence observable, so
// {"data": null} still counts as carrying a "data" member.
func envelopeData(body []byte) (json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, false
	}
	rawStatus, ok := fields["status"]
	if !ok {
		return nil, false
	}
	var status string
	if err := json.Unmarshal(rawStatus, &status); err != nil {
		return nil, false
	}
	data, ok := fields["data"]
	return data, ok
}

// UnwrapEnvelope returns the payload bytes of body.
//
// If body is a JSON object with a string "status" field and a "data" field,
// the "data" member is returned. Any other shape (bare arrays, objects
// without the wrapper fields, primitives) is returned unchanged.
func UnwrapEnvelope(body []byte) []byte {
	if data, ok := envelopeData(body); ok {
		return data
	}
	return body
}

// IsEnvelope reports whether body carries the {status, data} wrapper.
func IsEnvelope(body []byte) bool {
	_, ok := envelopeData(body)
	return ok
}
