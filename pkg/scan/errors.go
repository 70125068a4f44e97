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

package scan

import "errors"

var (
	ErrCIDRRequired  = errors.New("CIDR is required")
	ErrCIDRFormat    = errors.New("CIDR must look like 192.168.1.0/24")
	ErrCIDRPrefix    = errors.New("CIDR prefix must be 0-32")
	ErrCIDRAddress   = errors.New("CIDR IP must be a valid IPv4 address")
	ErrRangeTooLarge = errors.New("CIDR range too large")
)
