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

// Package registry holds the set of user-configured hub devices and
// validates additions to it.
package registry

import (
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/isolapurr/hubmon/pkg/models"
)

// AddDeviceInput is a raw add-device request before validation.
type AddDeviceInput struct {
	Name    string `json:"name"`
	BaseURL string `json:"baseUrl"`
	ID      string `json:"id,omitempty"`
}

// FieldErrors carries field-scoped validation failures. Zero value means
// valid.
type FieldErrors struct {
	Name    string `json:"name,omitempty"`
	BaseURL string `json:"baseUrl,omitempty"`
	ID      string `json:"id,omitempty"`
}

// Any reports whether any field failed.
func (e FieldErrors) Any() bool {
	return e.Name != "" || e.BaseURL != "" || e.ID != ""
}

// NormalizeBaseURL reduces a raw URL to its origin: scheme, host and port,
// discarding path, query and fragment. Idempotent. Only http and https are
// accepted.
func NormalizeBaseURL(raw string) (string, string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", "Base URL is required"
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return "", "Base URL must be a valid URL"
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "Base URL must start with http:// or https://"
	}

	return u.Scheme + "://" + u.Host, ""
}

// ValidateAddDevice checks an add-device request against the existing ids.
// An explicit id must be non-blank and unique; when absent a short random
// one is generated. Returns the validated device or field errors, never
// both.
func ValidateAddDevice(input AddDeviceInput, existingIDs []string) (models.Device, FieldErrors) {
	var errs FieldErrors

	name := strings.TrimSpace(input.Name)
	if name == "" {
		errs.Name = "Name is required"
	}

	baseURL, urlErr := NormalizeBaseURL(input.BaseURL)
	if urlErr != "" {
		errs.BaseURL = urlErr
	}

	explicit := strings.TrimSpace(input.ID)
	if input.ID != "" && explicit == "" {
		errs.ID = "ID cannot be blank"
	}

	if explicit != "" {
		for _, id := range existingIDs {
			if id == explicit {
				errs.ID = "ID already exists"

				break
			}
		}
	}

	if errs.Any() {
		return models.Device{}, errs
	}

	id := explicit
	if id == "" {
		id = GenerateDeviceID()
	}

	return models.Device{ID: id, Name: name, BaseURL: baseURL}, FieldErrors{}
}

// GenerateDeviceID returns a short random device id: the first segment of a
// random UUID.
func GenerateDeviceID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}
