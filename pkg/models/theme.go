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

package models

// ThemeID is the persisted UI theme preference.
type ThemeID string

const (
	ThemeDefault ThemeID = "isolapurr"
	ThemeDark    ThemeID = "isolapurr-dark"
	ThemeSystem  ThemeID = "system"
)

// Valid reports whether t is a known theme.
func (t ThemeID) Valid() bool {
	switch t {
	case ThemeDefault, ThemeDark, ThemeSystem:
		return true
	default:
		return false
	}
}

// NormalizeTheme maps unknown or empty values to the primary theme.
// Malformed persisted data is treated as absence, never a failure.
func NormalizeTheme(raw string) ThemeID {
	t := ThemeID(raw)
	if !t.Valid() {
		return ThemeDefault
	}

	return t
}
