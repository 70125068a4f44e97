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

package agent

import (
	"context"
	"errors"

	"github.com/isolapurr/hubmon/pkg/models"
	"github.com/isolapurr/hubmon/pkg/registry"
)

// Store adapts the agent client to the registry's storage backend
// interface, translating the agent's wire errors into the registry's
// error types.
type Store struct {
	client *Client
}

var _ registry.Store = (*Store)(nil)

// NewStore wraps a bootstrapped client as a registry backend.
func NewStore(client *Client) *Store {
	return &Store{client: client}
}

func (s *Store) Devices(ctx context.Context) ([]models.Device, error) {
	return s.client.Devices(ctx)
}

func (s *Store) UpsertDevice(ctx context.Context, device models.Device) (models.Device, error) {
	stored, err := s.client.UpsertDevice(ctx, device)
	if err != nil {
		return models.Device{}, mapStorageError(err)
	}

	return stored, nil
}

func (s *Store) DeleteDevice(ctx context.Context, id string) error {
	if err := s.client.DeleteDevice(ctx, id); err != nil {
		return mapStorageError(err)
	}

	return nil
}

func (s *Store) Theme(ctx context.Context) (models.ThemeID, error) {
	return s.client.Theme(ctx)
}

func (s *Store) SaveTheme(ctx context.Context, theme models.ThemeID) (models.ThemeID, error) {
	return s.client.SaveTheme(ctx, theme)
}

func mapStorageError(err error) error {
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		return err
	}

	switch storageErr.Code {
	case "conflict":
		return &registry.ConflictError{Message: storageErr.Message}
	case "not_found":
		return registry.ErrDeviceNotFound
	default:
		return err
	}
}
