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

import "fmt"

// ErrorKind is the closed classification of transport failures. Everything a
// device request can fail with maps onto exactly one of these.
type ErrorKind string

const (
	// KindOffline covers timeouts and any plain network-level failure.
	KindOffline ErrorKind = "offline"
	// KindPreflightBlocked is a network-level failure while the
	// private-network-access hint was attached to the request.
	KindPreflightBlocked ErrorKind = "preflight_blocked"
	// KindBusy is the distinguished 409/busy conflict; always retryable.
	KindBusy ErrorKind = "busy"
	// KindAPIError is any other device-reported application error.
	KindAPIError ErrorKind = "api_error"
	// KindInvalidResponse means the response body did not match the
	// expected contract.
	KindInvalidResponse ErrorKind = "invalid_response"
)

// Error is a classified transport failure. It is returned as a value from
// every client operation; nothing else escapes the transport boundary.
type Error struct {
	Kind      ErrorKind
	Status    int
	Code      string
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	if e.Kind == KindAPIError {
		return fmt.Sprintf("%s (%d %s): %s", e.Kind, e.Status, e.Code, e.Message)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Label is the fixed human-readable mapping used for cached last errors.
func (e *Error) Label() string {
	switch e.Kind {
	case KindOffline:
		return "Offline: device unreachable"
	case KindPreflightBlocked:
		return "Blocked: CORS/PNA preflight"
	case KindInvalidResponse:
		return "Invalid response"
	case KindBusy:
		return "Busy"
	default:
		return "API error: " + e.Code
	}
}

func offlineError(message string) *Error {
	return &Error{Kind: KindOffline, Message: message}
}

func preflightBlockedError() *Error {
	return &Error{Kind: KindPreflightBlocked, Message: "CORS/PNA preflight blocked"}
}

func busyError(message string) *Error {
	return &Error{Kind: KindBusy, Message: message, Retryable: true}
}

// InvalidResponse builds an invalid_response error. Exported because callers
// that validate response structure beyond the wire contract (the runtime's
// required-ports check) record their finding in the same taxonomy.
func InvalidResponse(message string) *Error {
	return &Error{Kind: KindInvalidResponse, Message: message}
}
