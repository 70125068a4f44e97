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

// Package api exposes the monitor daemon's REST surface: the device
// registry, live port state and actions, discovery, and settings.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/isolapurr/hubmon/pkg/deviceapi"
	"github.com/isolapurr/hubmon/pkg/discovery"
	"github.com/isolapurr/hubmon/pkg/logger"
	"github.com/isolapurr/hubmon/pkg/models"
	"github.com/isolapurr/hubmon/pkg/registry"
	"github.com/isolapurr/hubmon/pkg/runtime"
)

// Migrator runs the one-time localStorage import into the agent backend.
// Nil when no agent is connected.
type Migrator interface {
	Migrate(ctx context.Context) (imported int, reason string, err error)
}

// Server is the monitor daemon's HTTP API.
type Server struct {
	registry   *registry.Registry
	monitor    *runtime.Monitor
	session    *discovery.Session
	migrator   Migrator
	httpSrv    *http.Server
	listenAddr string
	logger     logger.Logger
}

// NewServer wires all routes.
func NewServer(reg *registry.Registry, monitor *runtime.Monitor, session *discovery.Session,
	migrator Migrator, listenAddr string, log logger.Logger) *Server {
	s := &Server{
		registry:   reg,
		monitor:    monitor,
		session:    session,
		migrator:   migrator,
		listenAddr: listenAddr,
		logger:     log.WithComponent("api"),
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/devices", s.handleListDevices)
		r.Post("/devices", s.handleAddDevice)
		r.Delete("/devices/{id}", s.handleRemoveDevice)
		r.Get("/devices/{id}/status", s.handleDeviceStatus)
		r.Get("/status", s.handleStatusAll)

		r.Post("/devices/{id}/ports/{portId}/power", s.handleSetPower)
		r.Post("/devices/{id}/ports/{portId}/replug", s.handleReplug)

		r.Get("/discovery", s.handleDiscoverySnapshot)
		r.Post("/discovery/scan", s.handleStartScan)
		r.Post("/discovery/scan/cancel", s.handleCancelScan)
		r.Post("/discovery/ipscan", s.handleToggleIPScan)

		r.Get("/settings/theme", s.handleGetTheme)
		r.Put("/settings/theme", s.handlePutTheme)

		r.Post("/migrate", s.handleMigrate)
	})

	s.httpSrv = &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// ListenAndServe blocks serving the API until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.listenAddr).Msg("monitor API listening")

	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]models.Device{"devices": s.registry.List()})
}

type addDeviceResponse struct {
	Device      *models.Device        `json:"device,omitempty"`
	FieldErrors *registry.FieldErrors `json:"fieldErrors,omitempty"`
}

func (s *Server) handleAddDevice(w http.ResponseWriter, r *http.Request) {
	var input registry.AddDeviceInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")

		return
	}

	device, fieldErrors, err := s.registry.Add(r.Context(), input)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage", err.Error())

		return
	}

	if fieldErrors.Any() {
		writeJSON(w, http.StatusUnprocessableEntity, addDeviceResponse{FieldErrors: &fieldErrors})

		return
	}

	writeJSON(w, http.StatusCreated, addDeviceResponse{Device: &device})
}

func (s *Server) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.registry.Get(id); !ok {
		writeError(w, http.StatusNotFound, "not_found", "device not found")

		return
	}

	s.registry.Remove(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleDeviceStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.registry.Get(id); !ok {
		writeError(w, http.StatusNotFound, "not_found", "device not found")

		return
	}

	status, ok := s.monitor.Status(id)
	if !ok {
		// Registered but not yet swept; report it as unknown.
		status = runtime.DeviceStatus{DeviceID: id, Connection: runtime.ConnectionUnknown}
	}

	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleStatusAll(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]runtime.DeviceStatus{"devices": s.monitor.StatusAll()})
}

type powerRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSetPower(w http.ResponseWriter, r *http.Request) {
	deviceID, portID, ok := s.actionTarget(w, r)
	if !ok {
		return
	}

	var req powerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")

		return
	}

	if apiErr := s.monitor.SetPower(r.Context(), deviceID, portID, req.Enabled); apiErr != nil {
		writeDeviceError(w, apiErr)

		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"accepted": true})
}

func (s *Server) handleReplug(w http.ResponseWriter, r *http.Request) {
	deviceID, portID, ok := s.actionTarget(w, r)
	if !ok {
		return
	}

	if apiErr := s.monitor.Replug(r.Context(), deviceID, portID); apiErr != nil {
		writeDeviceError(w, apiErr)

		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"accepted": true})
}

func (s *Server) actionTarget(w http.ResponseWriter, r *http.Request) (string, models.PortID, bool) {
	deviceID := chi.URLParam(r, "id")
	if _, ok := s.registry.Get(deviceID); !ok {
		writeError(w, http.StatusNotFound, "not_found", "device not found")

		return "", "", false
	}

	portID := models.PortID(chi.URLParam(r, "portId"))
	if !portID.Valid() {
		writeError(w, http.StatusNotFound, "not_found", "unknown port")

		return "", "", false
	}

	return deviceID, portID, true
}

func (s *Server) handleDiscoverySnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

type startScanRequest struct {
	CIDR string `json:"cidr"`
}

func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var req startScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")

		return
	}

	if err := s.session.StartScan(r.Context(), req.CIDR); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_cidr", err.Error())

		return
	}

	writeJSON(w, http.StatusAccepted, s.session.Snapshot())
}

func (s *Server) handleCancelScan(w http.ResponseWriter, _ *http.Request) {
	s.session.CancelScan()
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

type toggleIPScanRequest struct {
	Expanded bool `json:"expanded"`
}

func (s *Server) handleToggleIPScan(w http.ResponseWriter, r *http.Request) {
	var req toggleIPScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")

		return
	}

	s.session.Dispatch(discovery.ToggleIPScan{Expanded: req.Expanded, By: discovery.ExpandedByUser})
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

type themeBody struct {
	Theme string `json:"theme"`
}

func (s *Server) handleGetTheme(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, themeBody{Theme: string(s.registry.Theme(r.Context()))})
}

func (s *Server) handlePutTheme(w http.ResponseWriter, r *http.Request) {
	var req themeBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")

		return
	}

	theme, err := s.registry.SetTheme(r.Context(), models.NormalizeTheme(req.Theme))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage", err.Error())

		return
	}

	writeJSON(w, http.StatusOK, themeBody{Theme: string(theme)})
}

type migrateResult struct {
	Migrated bool   `json:"migrated"`
	Imported int    `json:"imported,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	if s.migrator == nil {
		writeJSON(w, http.StatusOK, migrateResult{Migrated: false, Reason: "no_agent"})

		return
	}

	imported, reason, err := s.migrator.Migrate(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "agent", err.Error())

		return
	}

	writeJSON(w, http.StatusOK, migrateResult{
		Migrated: reason == "",
		Imported: imported,
		Reason:   reason,
	})
}

func writeDeviceError(w http.ResponseWriter, apiErr *deviceapi.Error) {
	status := http.StatusBadGateway

	switch apiErr.Kind {
	case deviceapi.KindBusy:
		status = http.StatusConflict
	case deviceapi.KindAPIError:
		if apiErr.Status >= 400 {
			status = apiErr.Status
		}
	}

	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"kind":    string(apiErr.Kind),
			"label":   apiErr.Label(),
			"message": apiErr.Message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, models.APIErrorEnvelope{Error: models.APIError{
		Code:    code,
		Message: message,
	}})
}
