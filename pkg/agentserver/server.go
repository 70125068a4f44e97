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

package agentserver

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/isolapurr/hubmon/pkg/logger"
	"github.com/isolapurr/hubmon/pkg/models"
)

const tokenIssuer = "hubagent"

// Server is the companion agent's HTTP service. It binds to loopback only;
// the bootstrap endpoint hands out a bearer token that guards every
// storage route.
type Server struct {
	store      *SQLStore
	listenAddr string
	secret     []byte
	httpSrv    *http.Server
	logger     logger.Logger
}

// NewServer wires the storage routes over store. listenAddr must resolve
// to a loopback address; the agent never serves off-machine clients.
func NewServer(store *SQLStore, listenAddr string, log logger.Logger) (*Server, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate token secret: %w", err)
	}

	s := &Server{
		store:      store,
		listenAddr: listenAddr,
		secret:     secret,
		logger:     log.WithComponent("agentserver"),
	}

	// No RealIP middleware here: the loopback check below must see the
	// socket's peer address, not forwarded headers.
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Get("/api/v1/bootstrap", s.handleBootstrap)

	router.Route("/api/v1/storage", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/devices", s.handleListDevices)
		r.Post("/devices", s.handleUpsertDevice)
		r.Delete("/devices/{id}", s.handleDeleteDevice)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
		r.Post("/migrate/localstorage", s.handleMigrate)
		r.Get("/export", s.handleExport)
		r.Post("/reset", s.handleReset)
	})

	s.httpSrv = &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s, nil
}

// ListenAndServe blocks serving the API until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.listenAddr).Msg("agent storage API listening")

	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) issueToken() (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
	})

	return token.SignedString(s.secret)
}

func (s *Server) verifyToken(raw string) error {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}

		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return err
	}

	if !token.Valid {
		return errors.New("invalid token")
	}

	return nil
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")

		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || raw == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")

			return
		}

		if err := s.verifyToken(raw); err != nil {
			s.logger.Debug().Err(err).Msg("rejected storage request")
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token")

			return
		}

		next.ServeHTTP(w, r)
	})
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	ip := net.ParseIP(host)

	return ip != nil && ip.IsLoopback()
}

type bootstrapResponse struct {
	Token        string `json:"token"`
	AgentBaseURL string `json:"agentBaseUrl"`
	Warning      string `json:"warning,omitempty"`
}

func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		writeError(w, http.StatusForbidden, "forbidden", "bootstrap is loopback only")

		return
	}

	token, err := s.issueToken()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to issue token")
		writeError(w, http.StatusInternalServerError, "internal", "failed to issue token")

		return
	}

	resp := bootstrapResponse{
		Token:        token,
		AgentBaseURL: "http://" + s.listenAddr,
	}

	if notice, err := s.store.ConsumeCorruptNotice(r.Context()); err == nil && notice {
		resp.Warning = "Local storage was reset after a corruption."
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.store.Devices(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list devices")
		writeError(w, http.StatusInternalServerError, "internal", "failed to list devices")

		return
	}

	writeJSON(w, http.StatusOK, map[string][]models.Device{"devices": devices})
}

type upsertDeviceRequest struct {
	Device struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		BaseURL string `json:"baseUrl"`
	} `json:"device"`
}

func (s *Server) handleUpsertDevice(w http.ResponseWriter, r *http.Request) {
	var req upsertDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")

		return
	}

	if strings.TrimSpace(req.Device.Name) == "" || strings.TrimSpace(req.Device.BaseURL) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "name and baseUrl are required")

		return
	}

	device, err := s.store.UpsertDevice(r.Context(), req.Device.ID, req.Device.Name, req.Device.BaseURL)
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			writeError(w, http.StatusConflict, "conflict", conflict.Message)

			return
		}

		s.logger.Error().Err(err).Msg("failed to upsert device")
		writeError(w, http.StatusInternalServerError, "internal", "failed to store device")

		return
	}

	if err := s.store.MarkInitialized(r.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("failed to mark store initialized")
	}

	writeJSON(w, http.StatusOK, map[string]models.Device{"device": device})
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.store.DeleteDevice(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "device not found")

			return
		}

		s.logger.Error().Err(err).Msg("failed to delete device")
		writeError(w, http.StatusInternalServerError, "internal", "failed to delete device")

		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

type settingsResponse struct {
	Settings struct {
		Theme string `json:"theme"`
	} `json:"settings"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	theme, err := s.store.Theme(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read settings")
		writeError(w, http.StatusInternalServerError, "internal", "failed to read settings")

		return
	}

	var resp settingsResponse
	resp.Settings.Theme = string(models.NormalizeTheme(theme))

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")

		return
	}

	theme := models.NormalizeTheme(req.Settings.Theme)

	if err := s.store.SaveTheme(r.Context(), string(theme)); err != nil {
		s.logger.Error().Err(err).Msg("failed to save settings")
		writeError(w, http.StatusInternalServerError, "internal", "failed to save settings")

		return
	}

	if err := s.store.MarkInitialized(r.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("failed to mark store initialized")
	}

	var resp settingsResponse
	resp.Settings.Theme = string(theme)

	writeJSON(w, http.StatusOK, resp)
}

type migrateRequest struct {
	Source   string          `json:"source"`
	Devices  []models.Device `json:"devices"`
	Settings *struct {
		Theme string `json:"theme"`
	} `json:"settings"`
}

type migrateResponse struct {
	Migrated bool   `json:"migrated"`
	Reason   string `json:"reason,omitempty"`
	Imported *struct {
		Devices  int  `json:"devices"`
		Settings bool `json:"settings"`
	} `json:"imported,omitempty"`
}

func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	var req migrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")

		return
	}

	initialized, err := s.store.Initialized(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to check initialization")
		writeError(w, http.StatusInternalServerError, "internal", "failed to migrate")

		return
	}

	// The import is one-shot: once the agent owns any data, later offers
	// are ignored so stale local copies cannot clobber it.
	if initialized {
		writeJSON(w, http.StatusOK, migrateResponse{Migrated: false, Reason: "already_initialized"})

		return
	}

	imported := 0

	for _, device := range req.Devices {
		if strings.TrimSpace(device.Name) == "" || strings.TrimSpace(device.BaseURL) == "" {
			continue
		}

		if _, err := s.store.UpsertDevice(r.Context(), device.ID, device.Name, device.BaseURL); err != nil {
			s.logger.Warn().Err(err).Str("device_id", device.ID).Msg("skipped device during migration")

			continue
		}

		imported++
	}

	importedSettings := false

	if req.Settings != nil && req.Settings.Theme != "" {
		theme := models.NormalizeTheme(req.Settings.Theme)
		if err := s.store.SaveTheme(r.Context(), string(theme)); err == nil {
			importedSettings = true
		}
	}

	if err := s.store.MarkInitialized(r.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("failed to mark store initialized")
	}

	if err := s.store.MarkMigrated(r.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record migration time")
	}

	resp := migrateResponse{Migrated: true}
	resp.Imported = &struct {
		Devices  int  `json:"devices"`
		Settings bool `json:"settings"`
	}{Devices: imported, Settings: importedSettings}

	writeJSON(w, http.StatusOK, resp)
}

type exportResponse struct {
	SchemaVersion int             `json:"schema_version"`
	Devices       []models.Device `json:"devices"`
	Settings      struct {
		Theme string `json:"theme,omitempty"`
	} `json:"settings"`
	Meta *exportMeta `json:"meta,omitempty"`
}

type exportMeta struct {
	MigratedFromLocalStorageAt string `json:"migrated_from_localstorage_at,omitempty"`
	LastCorruptAt              string `json:"last_corrupt_at,omitempty"`
	LastCorruptReason          string `json:"last_corrupt_reason,omitempty"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	devices, err := s.store.Devices(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to export devices")
		writeError(w, http.StatusInternalServerError, "internal", "failed to export")

		return
	}

	theme, err := s.store.Theme(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to export settings")
		writeError(w, http.StatusInternalServerError, "internal", "failed to export")

		return
	}

	migratedAt, corruptAt, corruptReason, err := s.store.Meta(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to export meta")
		writeError(w, http.StatusInternalServerError, "internal", "failed to export")

		return
	}

	resp := exportResponse{SchemaVersion: SchemaVersion, Devices: devices}
	resp.Settings.Theme = theme

	if migratedAt != "" || corruptAt != "" {
		resp.Meta = &exportMeta{
			MigratedFromLocalStorageAt: migratedAt,
			LastCorruptAt:              corruptAt,
			LastCorruptReason:          corruptReason,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Reset(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("failed to reset storage")
		writeError(w, http.StatusInternalServerError, "internal", "failed to reset")

		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"reset": true})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, models.APIErrorEnvelope{Error: models.APIError{
		Code:      code,
		Message:   message,
		Retryable: false,
	}})
}
