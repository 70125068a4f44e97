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

package registry

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/isolapurr/hubmon/pkg/logger"
	"github.com/isolapurr/hubmon/pkg/models"
	"github.com/isolapurr/hubmon/pkg/notify"
)

// Registry is the set of user-configured devices. The in-memory list is a
// cache over the Store; mutations go through the store first and the cache
// is reconciled from the store's response.
type Registry struct {
	store    Store
	backend  bool // store is a remote backend that detects conflicts itself
	notifier notify.Notifier
	logger   logger.Logger

	mu      sync.RWMutex
	devices []models.Device
}

// New creates a registry over store. backend marks the store as a remote
// agent that is authoritative for uniqueness conflicts; with a plain local
// store the registry checks base-URL collisions itself.
func New(store Store, backend bool, notifier notify.Notifier, log logger.Logger) *Registry {
	return &Registry{
		store:    store,
		backend:  backend,
		notifier: notifier,
		logger:   log.WithComponent("registry"),
	}
}

// Load populates the cache from the store. A store read failure surfaces a
// notification and leaves the registry empty rather than failing startup.
func (r *Registry) Load(ctx context.Context) {
	devices, err := r.store.Devices(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("loading devices failed")
		r.notifier.Push(notify.Toast{
			Level:   notify.LevelError,
			Message: "Desktop storage unavailable: " + err.Error(),
		})

		devices = nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices = devices
}

// List returns a copy of the registered devices.
func (r *Registry) List() []models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]models.Device(nil), r.devices...)
}

// Get returns the device with the given id.
func (r *Registry) Get(id string) (models.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.devices {
		if d.ID == id {
			return d, true
		}
	}

	return models.Device{}, false
}

// IDs returns the registered device ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d.ID)
	}

	return out
}

// BaseURLs returns the registered base URLs.
func (r *Registry) BaseURLs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d.BaseURL)
	}

	return out
}

// Add validates input and persists the new device. Validation and conflict
// failures come back as field errors; only store transport failures are
// returned as an error.
func (r *Registry) Add(ctx context.Context, input AddDeviceInput) (models.Device, FieldErrors, error) {
	device, errs := ValidateAddDevice(input, r.IDs())
	if errs.Any() {
		return models.Device{}, errs, nil
	}

	if !r.backend {
		// No backend to arbitrate; the local cache is the whole truth.
		for _, existing := range r.List() {
			if existing.BaseURL == device.BaseURL {
				return models.Device{}, FieldErrors{BaseURL: "Base URL already exists"}, nil
			}
		}
	}

	stored, err := r.store.UpsertDevice(ctx, device)
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			return models.Device{}, conflictFieldErrors(conflict), nil
		}

		r.notifier.Push(notify.Toast{
			Level:   notify.LevelError,
			Message: "Desktop storage error: " + err.Error(),
		})

		return models.Device{}, FieldErrors{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.devices[:0:0]

	for _, d := range r.devices {
		if d.ID != stored.ID && d.BaseURL != stored.BaseURL {
			next = append(next, d)
		}
	}

	r.devices = append(next, stored)

	return stored, FieldErrors{}, nil
}

// Remove deletes a device. A store failure is surfaced as a notification
// but the local entry is dropped regardless; the next Load re-syncs.
func (r *Registry) Remove(ctx context.Context, id string) {
	if err := r.store.DeleteDevice(ctx, id); err != nil && !errors.Is(err, ErrDeviceNotFound) {
		r.logger.Error().Err(err).Str("device_id", id).Msg("deleting device failed")
		r.notifier.Push(notify.Toast{
			Level:   notify.LevelError,
			Message: "Desktop storage error: " + err.Error(),
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.devices[:0:0]

	for _, d := range r.devices {
		if d.ID != id {
			next = append(next, d)
		}
	}

	r.devices = next
}

// Theme loads the persisted theme preference; invalid or missing data
// yields the primary theme, never an error.
func (r *Registry) Theme(ctx context.Context) models.ThemeID {
	theme, err := r.store.Theme(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("loading theme failed")

		return models.ThemeDefault
	}

	return models.NormalizeTheme(string(theme))
}

// SetTheme persists a theme preference.
func (r *Registry) SetTheme(ctx context.Context, theme models.ThemeID) (models.ThemeID, error) {
	if !theme.Valid() {
		theme = models.ThemeDefault
	}

	return r.store.SaveTheme(ctx, theme)
}

func conflictFieldErrors(conflict *ConflictError) FieldErrors {
	if strings.Contains(conflict.Message, "ID") {
		return FieldErrors{ID: conflict.Message}
	}

	return FieldErrors{BaseURL: conflict.Message}
}
