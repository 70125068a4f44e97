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

// Package discovery tracks the state of a device-discovery session: a pure
// snapshot reducer plus the session object that drives the subnet scanner.
package discovery

import (
	"strings"

	"github.com/isolapurr/hubmon/pkg/models"
)

// Mode says where the snapshot's devices came from: the service (mDNS)
// browser or an explicit IP scan.
type Mode string

const (
	ModeService Mode = "service"
	ModeScan    Mode = "scan"
)

// Status is the lifecycle state of the discovery session.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusScanning    Status = "scanning"
	StatusReady       Status = "ready"
	StatusUnavailable Status = "unavailable"
)

// ExpandedBy records who opened the IP-scan panel.
type ExpandedBy string

const (
	ExpandedByUser ExpandedBy = "user"
	ExpandedByAuto ExpandedBy = "auto"
)

// ScanState is the progress of an active or just-finished CIDR scan.
type ScanState struct {
	CIDR  string `json:"cidr"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

// IPScanPanel is the expansion state of the IP-scan section; it survives
// snapshot replacement so the panel does not collapse mid-session.
type IPScanPanel struct {
	Expanded          bool       `json:"expanded"`
	ExpandedBy        ExpandedBy `json:"expandedBy,omitempty"`
	AutoExpandAfterMS int64      `json:"autoExpandAfterMs,omitempty"`
}

// Snapshot is the full state of one discovery session. It is driven
// exclusively through Reduce.
type Snapshot struct {
	Mode    Mode                      `json:"mode"`
	Status  Status                    `json:"status"`
	Devices []models.DiscoveredDevice `json:"devices"`
	Error   string                    `json:"error,omitempty"`
	Scan    *ScanState                `json:"scan,omitempty"`
	IPScan  *IPScanPanel              `json:"ipScan,omitempty"`
}

// NewSnapshot builds the initial service-mode snapshot for a session.
func NewSnapshot(status Status, autoExpandAfterMS int64) Snapshot {
	return Snapshot{
		Mode:    ModeService,
		Status:  status,
		Devices: []models.DiscoveredDevice{},
		IPScan: &IPScanPanel{
			Expanded:          false,
			AutoExpandAfterMS: autoExpandAfterMS,
		},
	}
}

// clone returns a copy whose slices and pointers are independent of s.
func (s Snapshot) clone() Snapshot {
	out := s
	out.Devices = append([]models.DiscoveredDevice(nil), s.Devices...)

	if s.Scan != nil {
		sc := *s.Scan
		out.Scan = &sc
	}

	if s.IPScan != nil {
		ip := *s.IPScan
		out.IPScan = &ip
	}

	return out
}

// dedupKey identifies a discovered device: the device id when the device
// reported one, otherwise its base URL.
func dedupKey(d models.DiscoveredDevice) string {
	if id := strings.TrimSpace(d.DeviceID); id != "" {
		return "id:" + id
	}

	return "url:" + strings.TrimSpace(d.BaseURL)
}

// MergeDiscoveredDevice merges device into devices by dedup key, shallow-
// overwriting older fields with the newer record's populated fields. The
// input slice is not mutated.
func MergeDiscoveredDevice(devices []models.DiscoveredDevice, device models.DiscoveredDevice) []models.DiscoveredDevice {
	key := dedupKey(device)
	out := make([]models.DiscoveredDevice, 0, len(devices)+1)
	merged := false

	for _, existing := range devices {
		if dedupKey(existing) == key {
			out = append(out, overlayDevice(existing, device))
			merged = true
		} else {
			out = append(out, existing)
		}
	}

	if !merged {
		out = append(out, device)
	}

	return out
}

func overlayDevice(older, newer models.DiscoveredDevice) models.DiscoveredDevice {
	out := older

	if newer.BaseURL != "" {
		out.BaseURL = newer.BaseURL
	}

	if newer.DeviceID != "" {
		out.DeviceID = newer.DeviceID
	}

	if newer.Hostname != "" {
		out.Hostname = newer.Hostname
	}

	if newer.FQDN != "" {
		out.FQDN = newer.FQDN
	}

	if newer.IPv4 != "" {
		out.IPv4 = newer.IPv4
	}

	if newer.Variant != "" {
		out.Variant = newer.Variant
	}

	if newer.Firmware != nil {
		fw := *newer.Firmware
		out.Firmware = &fw
	}

	if newer.LastSeenAt != "" {
		out.LastSeenAt = newer.LastSeenAt
	}

	return out
}
