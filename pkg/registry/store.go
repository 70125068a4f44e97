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

	"github.com/isolapurr/hubmon/pkg/models"
)

// ErrDeviceNotFound is returned by stores when deleting an unknown id.
var ErrDeviceNotFound = errors.New("device not found")

// ConflictError is a uniqueness violation reported by a Store. The message
// names the colliding field ("ID already exists" / "Base URL already
// exists") and maps back onto a field-specific validation error.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// Store persists registry state. Two implementations exist: the local
// JSON-file fallback and the desktop-agent-backed store. When a backend is
// active it is the authority for conflict detection during concurrent
// multi-client usage; the registry's in-memory copy is a cache reconciled
// after each successful mutation.
type Store interface {
	Devices(ctx context.Context) ([]models.Device, error)
	UpsertDevice(ctx context.Context, device models.Device) (models.Device, error)
	DeleteDevice(ctx context.Context, id string) error
	Theme(ctx context.Context) (models.ThemeID, error)
	SaveTheme(ctx context.Context, theme models.ThemeID) (models.ThemeID, error)
}
