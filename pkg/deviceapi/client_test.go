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

package deviceapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isolapurr/hubmon/pkg/logger"
	"github.com/isolapurr/hubmon/pkg/models"
)

func newTestClient(opts Options) *Client {
	return NewClient(opts, logger.NewTestLogger())
}

func TestGetPortsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/ports", r.URL.Path)
		assert.Equal(t, "no-store", r.Header.Get("Cache-Control"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ports":[
			{"portId":"port_a","label":"USB-A",
			 "telemetry":{"status":"ok","voltage_mv":5100,"current_ma":480,"power_mw":2448,"sample_uptime_ms":1234},
			 "state":{"power_enabled":true,"data_connected":true,"replugging":false,"busy":false},
			 "capabilities":{"data_replug":true,"power_set":true}},
			{"portId":"port_c","label":"USB-C",
			 "telemetry":{"status":"not_inserted","voltage_mv":null,"current_ma":null,"power_mw":null,"sample_uptime_ms":1234},
			 "state":{"power_enabled":false,"data_connected":false,"replugging":false,"busy":false},
			 "capabilities":{"data_replug":true,"power_set":true}}
		]}`))
	}))
	defer srv.Close()

	resp, apiErr := newTestClient(Options{}).GetPorts(context.Background(), srv.URL)
	require.Nil(t, apiErr)
	require.Len(t, resp.Ports, 2)

	a := resp.Ports[0]
	assert.Equal(t, models.PortA, a.PortID)
	assert.Equal(t, models.TelemetryOK, a.Telemetry.Status)
	require.NotNil(t, a.Telemetry.VoltageMV)
	assert.EqualValues(t, 5100, *a.Telemetry.VoltageMV)
	assert.True(t, a.State.PowerEnabled)

	c := resp.Ports[1]
	assert.Equal(t, models.TelemetryNotInserted, c.Telemetry.Status)
	assert.Nil(t, c.Telemetry.VoltageMV, "null telemetry stays distinguishable from zero")
}

func TestSetPortPowerQuery(t *testing.T) {
	var gotQuery string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/ports/port_a/power", r.URL.Path)

		_, _ = w.Write([]byte(`{"accepted":true,"power_enabled":false}`))
	}))
	defer srv.Close()

	resp, apiErr := newTestClient(Options{}).SetPortPower(context.Background(), srv.URL, models.PortA, false)
	require.Nil(t, apiErr)
	assert.Equal(t, "enabled=0", gotQuery)
	assert.True(t, resp.Accepted)
	assert.False(t, resp.PowerEnabled)
}

func TestDoClassifiesTimeoutAsOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := newTestClient(Options{Timeout: 50 * time.Millisecond})

	_, apiErr := client.GetPorts(context.Background(), srv.URL)
	require.NotNil(t, apiErr)
	assert.Equal(t, KindOffline, apiErr.Kind)
	assert.Equal(t, "request timed out", apiErr.Message)
	assert.Equal(t, "Offline: device unreachable", apiErr.Label())
}

func TestDoClassifiesConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // free the port, guaranteeing a refused connection

	_, apiErr := newTestClient(Options{}).GetPorts(context.Background(), srv.URL)
	require.NotNil(t, apiErr)
	assert.Equal(t, KindOffline, apiErr.Kind)
	assert.Equal(t, "device unreachable", apiErr.Message)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestDoClassifiesNetworkErrorAsPreflightBlockedWithHint(t *testing.T) {
	// Secure context + plain-http non-loopback target activates the PNA
	// hint, so a network failure reads as a blocked preflight.
	client := newTestClient(Options{SecureContext: true})
	client.httpClient = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("network error")
	})}

	_, apiErr := client.GetPorts(context.Background(), "http://192.168.1.50")
	require.NotNil(t, apiErr)
	assert.Equal(t, KindPreflightBlocked, apiErr.Kind)
	assert.Equal(t, "Blocked: CORS/PNA preflight", apiErr.Label())
}

func TestDoSendsPrivateNetworkHintHeader(t *testing.T) {
	var gotHeader string

	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		gotHeader = r.Header.Get("Access-Control-Request-Private-Network")

		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"ports":[]}`)),
			Header:     http.Header{},
		}, nil
	})

	secure := newTestClient(Options{SecureContext: true})
	secure.httpClient = &http.Client{Transport: transport}

	_, apiErr := secure.GetPorts(context.Background(), "http://192.168.1.50")
	require.Nil(t, apiErr)
	assert.Equal(t, "true", gotHeader)

	insecure := newTestClient(Options{})
	insecure.httpClient = &http.Client{Transport: transport}

	_, apiErr = insecure.GetPorts(context.Background(), "http://192.168.1.50")
	require.Nil(t, apiErr)
	assert.Empty(t, gotHeader)
}

func TestUsePrivateNetworkHint(t *testing.T) {
	tests := []struct {
		name          string
		secureContext bool
		baseURL       string
		want          bool
	}{
		{name: "secure plain-http lan target", secureContext: true, baseURL: "http://192.168.1.50", want: true},
		{name: "insecure context", secureContext: false, baseURL: "http://192.168.1.50", want: false},
		{name: "https target", secureContext: true, baseURL: "https://192.168.1.50", want: false},
		{name: "localhost", secureContext: true, baseURL: "http://localhost:8080", want: false},
		{name: "loopback ip", secureContext: true, baseURL: "http://127.0.0.1", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(Options{SecureContext: tt.secureContext})
			assert.Equal(t, tt.want, client.usePrivateNetworkHint(tt.baseURL))
		})
	}
}

func TestDoClassifiesMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ports": [`))
	}))
	defer srv.Close()

	_, apiErr := newTestClient(Options{}).GetPorts(context.Background(), srv.URL)
	require.NotNil(t, apiErr)
	assert.Equal(t, KindInvalidResponse, apiErr.Kind)
	assert.Equal(t, "malformed JSON body", apiErr.Message)
	assert.Equal(t, "Invalid response", apiErr.Label())
}

func TestClassifyBusyConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"busy","message":"replug in progress","retryable":true}}`))
	}))
	defer srv.Close()

	_, apiErr := newTestClient(Options{}).ReplugPort(context.Background(), srv.URL, models.PortA)
	require.NotNil(t, apiErr)
	assert.Equal(t, KindBusy, apiErr.Kind)
	assert.Equal(t, "replug in progress", apiErr.Message)
	assert.True(t, apiErr.Retryable)
	assert.Equal(t, "Busy", apiErr.Label())
}

func TestClassifyAPIErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"port_unknown","message":"no such port","retryable":false}}`))
	}))
	defer srv.Close()

	_, apiErr := newTestClient(Options{}).GetPort(context.Background(), srv.URL, models.PortA)
	require.NotNil(t, apiErr)
	assert.Equal(t, KindAPIError, apiErr.Kind)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "port_unknown", apiErr.Code)
	assert.Equal(t, "API error: port_unknown", apiErr.Label())
}

func TestClassifyNonEnvelopeFailure(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantMessage string
	}{
		{name: "plain text body", body: "boom", wantMessage: "boom"},
		{name: "empty body", body: "", wantMessage: "500 Internal Server Error"},
		{
			name:        "incomplete envelope",
			body:        `{"error":{"code":"x","message":"partial"}}`,
			wantMessage: `{"error":{"code":"x","message":"partial"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, apiErr := newTestClient(Options{}).GetPorts(context.Background(), srv.URL)
			require.NotNil(t, apiErr)
			assert.Equal(t, KindAPIError, apiErr.Kind)
			assert.Equal(t, "unknown", apiErr.Code)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
		})
	}
}

func TestDoToleratesEmptySuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resp, apiErr := newTestClient(Options{}).GetPorts(context.Background(), srv.URL)
	require.Nil(t, apiErr)
	assert.Empty(t, resp.Ports)
}
