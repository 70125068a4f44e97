/*
 * Copyright 2026 Isolapurr Project.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package models provides the shared data models for the hub monitor.
package models

// PortID identifies one of the two hub ports. The set is fixed; ports are
// never added or removed at runtime.
type PortID string

const (
	PortA PortID = "port_a"
	PortC PortID = "port_c"
)

// AllPortIDs returns the fixed port set in display order.
func AllPortIDs() []PortID {
	return []PortID{PortA, PortC}
}

// Label returns the human-facing port label used in notifications.
func (p PortID) Label() string {
	if p == PortA {
		return "USB-A"
	}

	return "USB-C"
}

// Valid reports whether p is one of the two known ports.
func (p PortID) Valid() bool {
	return p == PortA || p == PortC
}

// TelemetryStatus classifies a port's measurement sample.
type TelemetryStatus string

const (
	TelemetryOK          TelemetryStatus = "ok"
	TelemetryNotInserted TelemetryStatus = "not_inserted"
	TelemetryError       TelemetryStatus = "error"
	TelemetryOverrange   TelemetryStatus = "overrange"
)

// PortTelemetry is one measurement sample for a port. Nil numeric fields
// mean "unknown", which is distinct from zero.
type PortTelemetry struct {
	Status         TelemetryStatus `json:"status"`
	VoltageMV      *int64          `json:"voltage_mv"`
	CurrentMA      *int64          `json:"current_ma"`
	PowerMW        *int64          `json:"power_mw"`
	SampleUptimeMS int64           `json:"sample_uptime_ms"`
}

// PortState is the device-reported switch state for a port. Busy here is
// only the device-reported flag; the runtime merges it with its own
// action-in-flight flag for display and action gating.
type PortState struct {
	PowerEnabled  bool `json:"power_enabled"`
	DataConnected bool `json:"data_connected"`
	Replugging    bool `json:"replugging"`
	Busy          bool `json:"busy"`
}

// PortCapabilities advertises which actions the firmware supports.
type PortCapabilities struct {
	DataReplug bool `json:"data_replug"`
	PowerSet   bool `json:"power_set"`
}

// Port is one entry of the /api/v1/ports response.
type Port struct {
	PortID       PortID           `json:"portId"`
	Label        string           `json:"label,omitempty"`
	Telemetry    PortTelemetry    `json:"telemetry"`
	State        PortState        `json:"state"`
	Capabilities PortCapabilities `json:"capabilities,omitempty"`
}

// PortsResponse is the body of GET /api/v1/ports.
type PortsResponse struct {
	Ports []Port `json:"ports"`
}

// AcceptedResponse is the body of the replug action endpoint.
type AcceptedResponse struct {
	Accepted bool `json:"accepted"`
}

// PowerResponse is the body of the power action endpoint.
type PowerResponse struct {
	Accepted     bool `json:"accepted"`
	PowerEnabled bool `json:"power_enabled"`
}
