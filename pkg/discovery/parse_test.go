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

package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isolapurr/hubmon/pkg/models"
)

func infoFixture() *models.DeviceInfoResponse {
	var info models.DeviceInfoResponse
	info.Device = models.DeviceInfo{
		DeviceID: "hub-01",
		Hostname: "office-hub",
		FQDN:     "office-hub.local",
		Variant:  "rev-b",
		Firmware: models.Firmware{Name: models.FirmwareName, Version: "2.1.0"},
	}

	return &info
}

func TestParseDiscoveredDeviceFromInfo(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	device := ParseDiscoveredDeviceFromInfo("http://192.168.1.20", infoFixture(), "192.168.1.20", now)
	require.NotNil(t, device)

	assert.Equal(t, "http://office-hub.local", device.BaseURL, "a .local FQDN beats the probed IP")
	assert.Equal(t, "hub-01", device.DeviceID)
	assert.Equal(t, "office-hub", device.Hostname)
	assert.Equal(t, "192.168.1.20", device.IPv4)
	require.NotNil(t, device.Firmware)
	assert.Equal(t, "2.1.0", device.Firmware.Version)
	assert.Equal(t, "2026-03-14T09:30:00Z", device.LastSeenAt)
}

func TestParseDiscoveredDeviceRejectsForeignFirmware(t *testing.T) {
	info := infoFixture()
	info.Device.Firmware.Name = "some-other-firmware"

	assert.Nil(t, ParseDiscoveredDeviceFromInfo("http://192.168.1.20", info, "192.168.1.20", time.Now()))
	assert.Nil(t, ParseDiscoveredDeviceFromInfo("http://192.168.1.20", nil, "192.168.1.20", time.Now()))
}

func TestParseDiscoveredDevicePrefersWifiIPv4(t *testing.T) {
	info := infoFixture()
	ip := "10.1.2.3"
	info.Device.Wifi.IPv4 = &ip

	device := ParseDiscoveredDeviceFromInfo("http://192.168.1.20", info, "192.168.1.20", time.Now())
	require.NotNil(t, device)
	assert.Equal(t, "10.1.2.3", device.IPv4)
}

func TestParseDiscoveredDeviceDefaults(t *testing.T) {
	info := infoFixture()
	info.Device.FQDN = "office-hub.example.com"
	info.Device.Firmware.Version = "  "

	device := ParseDiscoveredDeviceFromInfo("http://192.168.1.20", info, "192.168.1.20", time.Now())
	require.NotNil(t, device)

	assert.Equal(t, "http://192.168.1.20", device.BaseURL, "non-.local FQDNs do not replace the probed URL")
	assert.Equal(t, "unknown", device.Firmware.Version)
}

func TestIsDiscoveredDeviceAdded(t *testing.T) {
	existingIDs := []string{"hub-01", "hub-02"}
	existingURLs := []string{"http://192.168.1.20", "http://hub.local"}

	tests := []struct {
		name   string
		device models.DiscoveredDevice
		want   bool
	}{
		{
			name:   "matched by id",
			device: models.DiscoveredDevice{DeviceID: "hub-02", BaseURL: "http://somewhere.else"},
			want:   true,
		},
		{
			name:   "matched by base URL",
			device: models.DiscoveredDevice{BaseURL: "http://hub.local"},
			want:   true,
		},
		{
			name:   "unmatched",
			device: models.DiscoveredDevice{DeviceID: "hub-99", BaseURL: "http://192.168.1.99"},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDiscoveredDeviceAdded(tt.device, existingIDs, existingURLs))
		})
	}
}

func TestSuggestManualEntryFillsBlanksOnly(t *testing.T) {
	device := models.DiscoveredDevice{
		BaseURL:  "http://hub.local",
		DeviceID: "hub-01",
		Hostname: "office-hub",
	}

	filled := SuggestManualEntry(ManualEntry{}, device)
	assert.Equal(t, ManualEntry{Name: "office-hub", BaseURL: "http://hub.local", ID: "hub-01"}, filled)

	kept := SuggestManualEntry(ManualEntry{Name: "My Hub", ID: "custom"}, device)
	assert.Equal(t, ManualEntry{Name: "My Hub", BaseURL: "http://hub.local", ID: "custom"}, kept)
}
