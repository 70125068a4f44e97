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

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isolapurr/hubmon/pkg/logger"
	"github.com/isolapurr/hubmon/pkg/models"
	"github.com/isolapurr/hubmon/pkg/registry"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()

	return NewLocalStore(t.TempDir(), logger.NewTestLogger())
}

func TestLocalStoreDeviceRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	devices, err := store.Devices(ctx)
	require.NoError(t, err)
	assert.Empty(t, devices)

	device := models.Device{ID: "hub-1", Name: "Office Hub", BaseURL: "http://10.0.0.1"}

	stored, err := store.UpsertDevice(ctx, device)
	require.NoError(t, err)
	assert.Equal(t, device, stored)

	devices, err = store.Devices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, device, devices[0])
}

func TestLocalStoreUpsertReplacesByIDOrBaseURL(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertDevice(ctx, models.Device{ID: "hub-1", Name: "A", BaseURL: "http://10.0.0.1"})
	require.NoError(t, err)

	// Same id, new base URL: replaces.
	_, err = store.UpsertDevice(ctx, models.Device{ID: "hub-1", Name: "A2", BaseURL: "http://10.0.0.9"})
	require.NoError(t, err)

	devices, err := store.Devices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "A2", devices[0].Name)

	// New id, colliding base URL: replaces too.
	_, err = store.UpsertDevice(ctx, models.Device{ID: "hub-2", Name: "B", BaseURL: "http://10.0.0.9"})
	require.NoError(t, err)

	devices, err = store.Devices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "hub-2", devices[0].ID)
}

func TestLocalStoreDeleteDevice(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertDevice(ctx, models.Device{ID: "hub-1", Name: "A", BaseURL: "http://10.0.0.1"})
	require.NoError(t, err)

	require.NoError(t, store.DeleteDevice(ctx, "hub-1"))
	require.ErrorIs(t, store.DeleteDevice(ctx, "hub-1"), registry.ErrDeviceNotFound)
}

func TestLocalStoreMalformedFileReadsAsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "local-store.json"), []byte("{not json"), 0o600))

	store := NewLocalStore(dir, logger.NewTestLogger())

	devices, err := store.Devices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)

	theme, err := store.Theme(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.ThemeDefault, theme)
}

func TestLocalStoreDropsInvalidDeviceEntries(t *testing.T) {
	dir := t.TempDir()

	raw := `{"isolapurr_usb_hub.devices":[
		{"id":"hub-1","name":"Good","baseUrl":"http://10.0.0.1/extra/path"},
		{"id":"","name":"NoID","baseUrl":"http://10.0.0.2"},
		{"id":"hub-3","name":"","baseUrl":"http://10.0.0.3"},
		{"id":"hub-4","name":"NoURL","baseUrl":"  "}
	]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "local-store.json"), []byte(raw), 0o600))

	store := NewLocalStore(dir, logger.NewTestLogger())

	devices, err := store.Devices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "hub-1", devices[0].ID)
	assert.Equal(t, "http://10.0.0.1", devices[0].BaseURL, "base URLs are re-normalized on load")
}

func TestLocalStoreThemeRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	theme, err := store.SaveTheme(ctx, models.ThemeDark)
	require.NoError(t, err)
	assert.Equal(t, models.ThemeDark, theme)

	loaded, err := store.Theme(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ThemeDark, loaded)

	// Unknown values normalize on write.
	theme, err = store.SaveTheme(ctx, "neon-green")
	require.NoError(t, err)
	assert.Equal(t, models.ThemeDefault, theme)
}

func TestLocalStoreMigrationPayload(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assert.Nil(t, store.ReadMigrationPayload())

	_, err := store.UpsertDevice(ctx, models.Device{ID: "hub-1", Name: "A", BaseURL: "http://10.0.0.1"})
	require.NoError(t, err)

	payload := store.ReadMigrationPayload()
	require.NotNil(t, payload)
	assert.Len(t, payload.Devices, 1)
	assert.False(t, payload.HasTheme)

	_, err = store.SaveTheme(ctx, models.ThemeSystem)
	require.NoError(t, err)

	payload = store.ReadMigrationPayload()
	require.NotNil(t, payload)
	assert.True(t, payload.HasTheme)
	assert.Equal(t, models.ThemeSystem, payload.Theme)
}
