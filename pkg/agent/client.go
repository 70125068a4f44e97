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

// Package agent is the client for the desktop companion agent's storage
// API. The agent, when present, owns device-list and settings persistence;
// this client is the registry's backend in that mode.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/isolapurr/hubmon/pkg/logger"
	"github.com/isolapurr/hubmon/pkg/models"
)

const bootstrapTimeout = 2 * time.Second

// Bootstrap is the one-time handshake result: the bearer token and the base
// URL to reach the agent on.
type Bootstrap struct {
	Token        string `json:"token"`
	AgentBaseURL string `json:"agentBaseUrl"`
	Warning      string `json:"warning,omitempty"`
}

// TryBootstrap probes the agent's bootstrap endpoint. A missing or
// malformed agent reads as absence (nil), not an error; the caller falls
// back to local storage.
func TryBootstrap(ctx context.Context, baseURL string, log logger.Logger) *Bootstrap {
	reqCtx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet,
		strings.TrimRight(baseURL, "/")+"/api/v1/bootstrap", http.NoBody)
	if err != nil {
		return nil
	}

	req.Header.Set("Cache-Control", "no-store")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("agent bootstrap unreachable")

		return nil
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var b Bootstrap
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		return nil
	}

	if b.Token == "" || b.AgentBaseURL == "" {
		return nil
	}

	return &b
}

// StorageError is a failure reported by the agent's storage API.
type StorageError struct {
	Code    string
	Message string
}

func (e *StorageError) Error() string {
	return e.Message
}

// Client talks to a bootstrapped agent.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     logger.Logger
}

// NewClient builds a client from a successful bootstrap.
func NewClient(b *Bootstrap, log logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(b.AgentBaseURL, "/"),
		token:      b.Token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     log.WithComponent("agent"),
	}
}

type devicesResponse struct {
	Devices []models.Device `json:"devices"`
}

type deviceResponse struct {
	Device *models.Device `json:"device"`
}

type settingsBody struct {
	Settings struct {
		Theme string `json:"theme"`
	} `json:"settings"`
}

type upsertDeviceRequest struct {
	Device upsertDeviceInput `json:"device"`
}

type upsertDeviceInput struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	BaseURL string `json:"baseUrl"`
}

// MigrateRequest is the one-time local-data import payload.
type MigrateRequest struct {
	Source   string           `json:"source"`
	Devices  []models.Device  `json:"devices,omitempty"`
	Settings *MigrateSettings `json:"settings,omitempty"`
}

// MigrateSettings carries the settings part of a migration.
type MigrateSettings struct {
	Theme string `json:"theme,omitempty"`
}

// MigrateResponse reports what the agent imported.
type MigrateResponse struct {
	Migrated bool `json:"migrated"`
	Imported *struct {
		Devices  int  `json:"devices"`
		Settings bool `json:"settings"`
	} `json:"imported,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ExportMeta is the bookkeeping block of an export.
type ExportMeta struct {
	MigratedFromLocalStorageAt string `json:"migrated_from_localstorage_at,omitempty"`
	LastCorruptAt              string `json:"last_corrupt_at,omitempty"`
	LastCorruptReason          string `json:"last_corrupt_reason,omitempty"`
}

// Export is the agent's full storage dump.
type Export struct {
	SchemaVersion int             `json:"schema_version"`
	Devices       []models.Device `json:"devices"`
	Settings      struct {
		Theme string `json:"theme,omitempty"`
	} `json:"settings"`
	Meta *ExportMeta `json:"meta,omitempty"`
}

// Devices lists the stored devices.
func (c *Client) Devices(ctx context.Context) ([]models.Device, error) {
	var out devicesResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/storage/devices", nil, &out); err != nil {
		return nil, err
	}

	return out.Devices, nil
}

// UpsertDevice stores one device. Uniqueness conflicts come back as a
// *StorageError with code "conflict".
func (c *Client) UpsertDevice(ctx context.Context, device models.Device) (models.Device, error) {
	req := upsertDeviceRequest{Device: upsertDeviceInput{
		ID:      device.ID,
		Name:    device.Name,
		BaseURL: device.BaseURL,
	}}

	var out deviceResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/storage/devices", req, &out); err != nil {
		return models.Device{}, err
	}

	if out.Device == nil {
		return models.Device{}, &StorageError{Message: "invalid response"}
	}

	return *out.Device, nil
}

// DeleteDevice removes one device by id.
func (c *Client) DeleteDevice(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/storage/devices/"+id, nil, nil)
}

// Theme reads the stored theme preference; unknown values fall back to the
// primary theme.
func (c *Client) Theme(ctx context.Context) (models.ThemeID, error) {
	var out settingsBody
	if err := c.do(ctx, http.MethodGet, "/api/v1/storage/settings", nil, &out); err != nil {
		return "", err
	}

	return models.NormalizeTheme(out.Settings.Theme), nil
}

// SaveTheme stores the theme preference.
func (c *Client) SaveTheme(ctx context.Context, theme models.ThemeID) (models.ThemeID, error) {
	var body settingsBody
	body.Settings.Theme = string(theme)

	var out settingsBody
	if err := c.do(ctx, http.MethodPut, "/api/v1/storage/settings", body, &out); err != nil {
		return "", err
	}

	next := models.ThemeID(out.Settings.Theme)
	if !next.Valid() {
		return "", &StorageError{Message: "invalid response"}
	}

	return next, nil
}

// MigrateLocalStorage offers the local fallback data for one-time import.
func (c *Client) MigrateLocalStorage(ctx context.Context, req MigrateRequest) (*MigrateResponse, error) {
	var out MigrateResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/storage/migrate/localstorage", req, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// ExportStorage dumps the agent's stored state.
func (c *Client) ExportStorage(ctx context.Context) (*Export, error) {
	var out Export
	if err := c.do(ctx, http.MethodGet, "/api/v1/storage/export", nil, &out); err != nil {
		return nil, err
	}

	if out.SchemaVersion == 0 {
		return nil, &StorageError{Message: "invalid response"}
	}

	return &out, nil
}

// ResetStorage wipes the agent's stored state.
func (c *Client) ResetStorage(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/storage/reset", struct{}{}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body *bytes.Reader

	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return err
		}

		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Cache-Control", "no-store")

	if in != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &StorageError{Message: err.Error()}
	}

	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug().Err(cerr).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readStorageError(resp)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &StorageError{Message: "invalid response"}
	}

	return nil
}

func readStorageError(resp *http.Response) *StorageError {
	var envelope models.APIErrorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error.Message != "" {
		return &StorageError{Code: envelope.Error.Code, Message: envelope.Error.Message}
	}

	return &StorageError{Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
}
