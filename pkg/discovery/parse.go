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
	"strings"
	"time"

	"github.com/isolapurr/hubmon/pkg/models"
)

// ParseDiscoveredDeviceFromInfo turns a successful info probe into a
// discovered-device record, or nil when the response does not identify a
// matching hub (the firmware name must match exactly). A `.local` FQDN is
// preferred over the probed-IP base URL; the device-reported WiFi IPv4 is
// preferred over the scanned address.
func ParseDiscoveredDeviceFromInfo(baseURLByIP string, info *models.DeviceInfoResponse, scannedIPv4 string, now time.Time) *models.DiscoveredDevice {
	if info == nil {
		return nil
	}

	device := info.Device

	if device.Firmware.Name != models.FirmwareName {
		return nil
	}

	version := strings.TrimSpace(device.Firmware.Version)
	if version == "" {
		version = "unknown"
	}

	baseURL := baseURLByIP

	fqdn := strings.TrimSpace(device.FQDN)
	if strings.HasSuffix(fqdn, ".local") {
		baseURL = "http://" + fqdn
	}

	ipv4 := scannedIPv4
	if device.Wifi.IPv4 != nil && strings.TrimSpace(*device.Wifi.IPv4) != "" {
		ipv4 = *device.Wifi.IPv4
	}

	return &models.DiscoveredDevice{
		BaseURL:    baseURL,
		DeviceID:   strings.TrimSpace(device.DeviceID),
		Hostname:   strings.TrimSpace(device.Hostname),
		FQDN:       fqdn,
		IPv4:       ipv4,
		Variant:    strings.TrimSpace(device.Variant),
		Firmware:   &models.Firmware{Name: device.Firmware.Name, Version: version},
		LastSeenAt: now.UTC().Format(time.RFC3339),
	}
}

// IsDiscoveredDeviceAdded reports whether a discovered device is already in
// the registry, by device id or by base URL.
func IsDiscoveredDeviceAdded(device models.DiscoveredDevice, existingIDs, existingBaseURLs []string) bool {
	ids := make(map[string]struct{}, len(existingIDs))

	for _, id := range existingIDs {
		if v := strings.TrimSpace(id); v != "" {
			ids[v] = struct{}{}
		}
	}

	urls := make(map[string]struct{}, len(existingBaseURLs))

	for _, u := range existingBaseURLs {
		if v := strings.TrimSpace(u); v != "" {
			urls[v] = struct{}{}
		}
	}

	if device.DeviceID != "" {
		if _, ok := ids[device.DeviceID]; ok {
			return true
		}
	}

	_, ok := urls[device.BaseURL]

	return ok
}

// ManualEntry is the manual add-device form state a discovered device can
// prefill.
type ManualEntry struct {
	Name    string
	BaseURL string
	ID      string
}

// SuggestManualEntry prefills blank form fields from a discovered device.
// The base URL always follows the selected device; name and id are only
// suggested when the user has not typed anything.
func SuggestManualEntry(current ManualEntry, device models.DiscoveredDevice) ManualEntry {
	next := current
	next.BaseURL = device.BaseURL

	if strings.TrimSpace(current.Name) == "" && device.Hostname != "" {
		next.Name = device.Hostname
	}

	if strings.TrimSpace(current.ID) == "" && device.DeviceID != "" {
		next.ID = device.DeviceID
	}

	return next
}
