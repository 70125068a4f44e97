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

// Package storage is the local key-value fallback store used when no
// desktop agent is reachable: a single JSON file of namespaced records,
// validated structurally on load. Malformed data reads as absence, never as
// a failure.
package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/isolapurr/hubmon/pkg/logger"
	"github.com/isolapurr/hubmon/pkg/models"
	"github.com/isolapurr/hubmon/pkg/registry"
)

const (
	// DevicesKey and ThemeKey are the namespaced record keys, kept
	// compatible with the web app's browser-storage layout.
	DevicesKey = "isolapurr_usb_hub.devices"
	ThemeKey   = "isolapurr_usb_hub.theme"

	storeFileName = "local-store.json"
	fileMode      = 0o600
)

// LocalStore implements registry.Store over a JSON file.
type LocalStore struct {
	path   string
	logger logger.Logger
	mu     sync.Mutex
}

var _ registry.Store = (*LocalStore)(nil)

// NewLocalStore creates a store rooted at dir.
func NewLocalStore(dir string, log logger.Logger) *LocalStore {
	return &LocalStore{
		path:   filepath.Join(dir, storeFileName),
		logger: log.WithComponent("storage"),
	}
}

// Devices implements registry.Store. Entries that fail structural
// validation are dropped silently; base URLs are re-normalized on load.
func (s *LocalStore) Devices(_ context.Context) ([]models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readDevices(s.read()), nil
}

// UpsertDevice implements registry.Store. An entry with the same id or the
// same base URL is replaced.
func (s *LocalStore) UpsertDevice(_ context.Context, device models.Device) (models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.read()
	devices := s.readDevices(records)

	next := devices[:0:0]

	for _, d := range devices {
		if d.ID != device.ID && d.BaseURL != device.BaseURL {
			next = append(next, d)
		}
	}

	next = append(next, device)

	if err := s.writeKey(records, DevicesKey, next); err != nil {
		return models.Device{}, err
	}

	return device, nil
}

// DeleteDevice implements registry.Store.
func (s *LocalStore) DeleteDevice(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.read()
	devices := s.readDevices(records)

	next := devices[:0:0]

	for _, d := range devices {
		if d.ID != id {
			next = append(next, d)
		}
	}

	if len(next) == len(devices) {
		return registry.ErrDeviceNotFound
	}

	return s.writeKey(records, DevicesKey, next)
}

// Theme implements registry.Store.
func (s *LocalStore) Theme(_ context.Context) (models.ThemeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readTheme(s.read()), nil
}

// SaveTheme implements registry.Store.
func (s *LocalStore) SaveTheme(_ context.Context, theme models.ThemeID) (models.ThemeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	theme = models.NormalizeTheme(string(theme))

	if err := s.writeKey(s.read(), ThemeKey, theme); err != nil {
		return "", err
	}

	return theme, nil
}

// MigrationPayload is the local data bundle offered to the desktop agent's
// one-time import endpoint.
type MigrationPayload struct {
	Devices  []models.Device
	Theme    models.ThemeID
	HasTheme bool
}

// ReadMigrationPayload returns the local data worth migrating, or nil when
// there is none.
func (s *LocalStore) ReadMigrationPayload() *MigrationPayload {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.read()
	devices := s.readDevices(records)

	raw, hasTheme := records[ThemeKey]

	var theme models.ThemeID

	if hasTheme {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil || !models.ThemeID(v).Valid() {
			hasTheme = false
		} else {
			theme = models.ThemeID(v)
		}
	}

	if len(devices) == 0 && !hasTheme {
		return nil
	}

	return &MigrationPayload{Devices: devices, Theme: theme, HasTheme: hasTheme}
}

func (s *LocalStore) read() map[string]json.RawMessage {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return map[string]json.RawMessage{}
	}

	var records map[string]json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("local store unreadable, treating as empty")

		return map[string]json.RawMessage{}
	}

	return records
}

func (s *LocalStore) writeKey(records map[string]json.RawMessage, key string, value interface{}) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}

	records[key] = encoded

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}

	return os.WriteFile(s.path, data, fileMode)
}

func (s *LocalStore) readDevices(records map[string]json.RawMessage) []models.Device {
	raw, ok := records[DevicesKey]
	if !ok {
		return nil
	}

	var parsed []json.RawMessage
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil
	}

	devices := make([]models.Device, 0, len(parsed))

	for _, item := range parsed {
		var d models.Device
		if err := json.Unmarshal(item, &d); err != nil {
			continue
		}

		if strings.TrimSpace(d.ID) == "" || strings.TrimSpace(d.Name) == "" || strings.TrimSpace(d.BaseURL) == "" {
			continue
		}

		if normalized, errMsg := registry.NormalizeBaseURL(d.BaseURL); errMsg == "" {
			d.BaseURL = normalized
		}

		devices = append(devices, d)
	}

	return devices
}

func (s *LocalStore) readTheme(records map[string]json.RawMessage) models.ThemeID {
	raw, ok := records[ThemeKey]
	if !ok {
		return models.ThemeDefault
	}

	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return models.ThemeDefault
	}

	return models.NormalizeTheme(v)
}
