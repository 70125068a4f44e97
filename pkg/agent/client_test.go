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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isolapurr/hubmon/pkg/logger"
	"github.com/isolapurr/hubmon/pkg/models"
	"github.com/isolapurr/hubmon/pkg/registry"
)

func TestTryBootstrapAbsentAgentReadsAsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	assert.Nil(t, TryBootstrap(context.Background(), srv.URL, logger.NewTestLogger()))
}

func TestTryBootstrapRejectsIncompleteResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"token":"abc"}`))
	}))
	defer srv.Close()

	assert.Nil(t, TryBootstrap(context.Background(), srv.URL, logger.NewTestLogger()))
}

func TestTryBootstrapSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/bootstrap", r.URL.Path)
		_, _ = w.Write([]byte(`{"token":"abc","agentBaseUrl":"http://127.0.0.1:8591"}`))
	}))
	defer srv.Close()

	b := TryBootstrap(context.Background(), srv.URL, logger.NewTestLogger())
	require.NotNil(t, b)
	assert.Equal(t, "abc", b.Token)
	assert.Equal(t, "http://127.0.0.1:8591", b.AgentBaseURL)
}

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"devices":[]}`))
	}))
	defer srv.Close()

	client := NewClient(&Bootstrap{Token: "tok-1", AgentBaseURL: srv.URL}, logger.NewTestLogger())

	devices, err := client.Devices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)
	assert.Equal(t, "Bearer tok-1", gotAuth)
}

func TestStoreMapsConflictError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"conflict","message":"ID already exists","retryable":false}}`))
	}))
	defer srv.Close()

	store := NewStore(NewClient(&Bootstrap{Token: "t", AgentBaseURL: srv.URL}, logger.NewTestLogger()))

	_, err := store.UpsertDevice(context.Background(), models.Device{ID: "hub-1", Name: "A", BaseURL: "http://10.0.0.1"})
	require.Error(t, err)

	var conflict *registry.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "ID already exists", conflict.Message)
}

func TestStoreMapsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"not_found","message":"device not found","retryable":false}}`))
	}))
	defer srv.Close()

	store := NewStore(NewClient(&Bootstrap{Token: "t", AgentBaseURL: srv.URL}, logger.NewTestLogger()))

	err := store.DeleteDevice(context.Background(), "ghost")
	require.ErrorIs(t, err, registry.ErrDeviceNotFound)
}

func TestClientUpsertDevice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/storage/devices", r.URL.Path)

		var req upsertDeviceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Office", req.Device.Name)

		_, _ = w.Write([]byte(`{"device":{"id":"hub-1","name":"Office","baseUrl":"http://10.0.0.1"}}`))
	}))
	defer srv.Close()

	client := NewClient(&Bootstrap{Token: "t", AgentBaseURL: srv.URL}, logger.NewTestLogger())

	device, err := client.UpsertDevice(context.Background(), models.Device{Name: "Office", BaseURL: "http://10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "hub-1", device.ID)
}

func TestClientThemeNormalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"settings":{"theme":"something-unknown"}}`))
	}))
	defer srv.Close()

	client := NewClient(&Bootstrap{Token: "t", AgentBaseURL: srv.URL}, logger.NewTestLogger())

	theme, err := client.Theme(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.ThemeDefault, theme)
}
