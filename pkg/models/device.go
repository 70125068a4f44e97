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

package models

// FirmwareName is the firmware identifier reported by matching hub devices.
// Discovery rejects probe responses carrying anything else.
const FirmwareName = "isolapurr-usb-hub"

// Device is a user-configured hub entry in the registry. ID and BaseURL are
// each unique within the registry; BaseURL is a normalized http/https origin
// with no path.
type Device struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	BaseURL    string `json:"baseUrl"`
	LastSeenAt string `json:"lastSeenAt,omitempty"`
}

// Firmware identifies the firmware build running on a device.
type Firmware struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// WifiState is the device-reported WiFi link status.
type WifiState struct {
	State    string  `json:"state"`
	IPv4     *string `json:"ipv4"`
	IsStatic bool    `json:"is_static"`
}

// DeviceInfo is the device block of GET /api/v1/info.
type DeviceInfo struct {
	DeviceID string    `json:"device_id"`
	Hostname string    `json:"hostname"`
	FQDN     string    `json:"fqdn"`
	MAC      string    `json:"mac"`
	Variant  string    `json:"variant"`
	Firmware Firmware  `json:"firmware"`
	UptimeMS int64     `json:"uptime_ms"`
	Wifi     WifiState `json:"wifi"`
}

// DeviceInfoResponse is the body of GET /api/v1/info.
type DeviceInfoResponse struct {
	Device DeviceInfo `json:"device"`
}

// DiscoveredDevice is a device record produced by discovery (mDNS service
// browse or IP scan). Only BaseURL is guaranteed to be present.
type DiscoveredDevice struct {
	BaseURL    string    `json:"baseUrl"`
	DeviceID   string    `json:"device_id,omitempty"`
	Hostname   string    `json:"hostname,omitempty"`
	FQDN       string    `json:"fqdn,omitempty"`
	IPv4       string    `json:"ipv4,omitempty"`
	Variant    string    `json:"variant,omitempty"`
	Firmware   *Firmware `json:"firmware,omitempty"`
	LastSeenAt string    `json:"last_seen_at,omitempty"`
}

// APIError is the error envelope returned by devices and by the storage
// agent on non-2xx responses.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// APIErrorEnvelope wraps APIError on the wire.
type APIErrorEnvelope struct {
	Error APIError `json:"error"`
}
