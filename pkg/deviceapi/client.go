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

// Package deviceapi is the HTTP transport for managed hub devices. It turns
// every request outcome into either a typed success value or a classified
// *Error; callers never see raw transport errors.
package deviceapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/isolapurr/hubmon/pkg/logger"
	"github.com/isolapurr/hubmon/pkg/models"
)

const defaultRequestTimeout = 4 * time.Second

// Options configures a Client.
type Options struct {
	// Timeout is the hard per-request timeout; in-flight requests are
	// aborted when it elapses. Zero means the 4 s default.
	Timeout time.Duration
	// SecureContext marks the caller as running in a secure context, which
	// is the precondition for attaching the private-network-access hint to
	// plain-http non-loopback targets.
	SecureContext bool
}

// Client issues requests against a device's base origin.
type Client struct {
	httpClient    *http.Client
	timeout       time.Duration
	secureContext bool
	logger        logger.Logger
}

// NewClient creates a device transport client.
func NewClient(opts Options, log logger.Logger) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}

	return &Client{
		httpClient:    &http.Client{},
		timeout:       timeout,
		secureContext: opts.SecureContext,
		logger:        log.WithComponent("deviceapi"),
	}
}

// GetPorts fetches the full port snapshot.
func (c *Client) GetPorts(ctx context.Context, baseURL string) (*models.PortsResponse, *Error) {
	var out models.PortsResponse
	if err := c.do(ctx, http.MethodGet, baseURL, "/api/v1/ports", &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// GetPort fetches a single port.
func (c *Client) GetPort(ctx context.Context, baseURL string, portID models.PortID) (*models.Port, *Error) {
	var out models.Port
	if err := c.do(ctx, http.MethodGet, baseURL, "/api/v1/ports/"+string(portID), &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// ReplugPort requests a data replug on a port. The device accepts and
// executes asynchronously.
func (c *Client) ReplugPort(ctx context.Context, baseURL string, portID models.PortID) (*models.AcceptedResponse, *Error) {
	var out models.AcceptedResponse
	if err := c.do(ctx, http.MethodPost, baseURL, "/api/v1/ports/"+string(portID)+"/actions/replug", &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// SetPortPower switches a port's power rail via the enabled query parameter.
func (c *Client) SetPortPower(ctx context.Context, baseURL string, portID models.PortID, enabled bool) (*models.PowerResponse, *Error) {
	q := "enabled=0"
	if enabled {
		q = "enabled=1"
	}

	var out models.PowerResponse
	if err := c.do(ctx, http.MethodPost, baseURL, "/api/v1/ports/"+string(portID)+"/power?"+q, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// GetInfo fetches the device identity block.
func (c *Client) GetInfo(ctx context.Context, baseURL string) (*models.DeviceInfoResponse, *Error) {
	var out models.DeviceInfoResponse
	if err := c.do(ctx, http.MethodGet, baseURL, "/api/v1/info", &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// usePrivateNetworkHint reports whether the PNA hint applies to baseURL:
// plain-http, non-loopback target reached from a secure context. The hint
// only governs whether a restrictive preflight applies; it is not a security
// boundary enforced here.
func (c *Client) usePrivateNetworkHint(baseURL string) bool {
	if !c.secureContext {
		return false
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return false
	}

	if u.Scheme != "http" {
		return false
	}

	host := u.Hostname()

	return host != "localhost" && host != "127.0.0.1"
}

func (c *Client) do(ctx context.Context, method, baseURL, path string, out interface{}) *Error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	pnaHint := c.usePrivateNetworkHint(baseURL)

	req, err := http.NewRequestWithContext(reqCtx, method, strings.TrimRight(baseURL, "/")+path, http.NoBody)
	if err != nil {
		return offlineError("device unreachable")
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	if pnaHint {
		req.Header.Set("Access-Control-Request-Private-Network", "true")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return offlineError("request timed out")
		}

		if pnaHint {
			return preflightBlockedError()
		}

		return offlineError("device unreachable")
	}

	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug().Err(cerr).Msg("failed to close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return offlineError("request timed out")
		}

		if pnaHint {
			return preflightBlockedError()
		}

		return offlineError("device unreachable")
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if len(body) == 0 || out == nil {
			return nil
		}

		if err := json.Unmarshal(body, out); err != nil {
			return InvalidResponse("malformed JSON body")
		}

		return nil
	}

	return classifyFailure(resp, body)
}

// classifyFailure maps a non-2xx response onto the error taxonomy; first
// match wins.
func classifyFailure(resp *http.Response, body []byte) *Error {
	if env := parseErrorEnvelope(body); env != nil {
		if resp.StatusCode == http.StatusConflict && env.Code == "busy" {
			return busyError(env.Message)
		}

		return &Error{
			Kind:      KindAPIError,
			Status:    resp.StatusCode,
			Code:      env.Code,
			Message:   env.Message,
			Retryable: env.Retryable,
		}
	}

	message := strings.TrimSpace(string(body))
	if message == "" {
		message = resp.Status
	}

	return &Error{
		Kind:    KindAPIError,
		Status:  resp.StatusCode,
		Code:    "unknown",
		Message: message,
	}
}

// parseErrorEnvelope returns the device error envelope, or nil when the body
// does not match it structurally. All three fields must be present with the
// right types for the envelope to count.
func parseErrorEnvelope(body []byte) *models.APIError {
	var probe struct {
		Error *struct {
			Code      *string `json:"code"`
			Message   *string `json:"message"`
			Retryable *bool   `json:"retryable"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &probe); err != nil {
		return nil
	}

	e := probe.Error
	if e == nil || e.Code == nil || e.Message == nil || e.Retryable == nil {
		return nil
	}

	return &models.APIError{Code: *e.Code, Message: *e.Message, Retryable: *e.Retryable}
}
