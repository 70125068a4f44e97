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

	"github.com/isolapurr/hubmon/pkg/storage"
)

// LocalMigrator offers the local fallback store's data to the agent's
// one-time import. The agent decides whether to take it.
type LocalMigrator struct {
	client *Client
	local  *storage.LocalStore
}

// NewLocalMigrator pairs a bootstrapped client with the local store.
func NewLocalMigrator(client *Client, local *storage.LocalStore) *LocalMigrator {
	return &LocalMigrator{client: client, local: local}
}

// Migrate sends the local payload. It returns the number of imported
// devices, or the agent's reason for declining (e.g. it already owns
// data).
func (m *LocalMigrator) Migrate(ctx context.Context) (int, string, error) {
	req := MigrateRequest{Source: "localStorage"}

	if payload := m.local.ReadMigrationPayload(); payload != nil {
		req.Devices = payload.Devices

		if payload.HasTheme {
			req.Settings = &MigrateSettings{Theme: string(payload.Theme)}
		}
	}

	resp, err := m.client.MigrateLocalStorage(ctx, req)
	if err != nil {
		return 0, "", err
	}

	if !resp.Migrated {
		return 0, resp.Reason, nil
	}

	imported := 0
	if resp.Imported != nil {
		imported = resp.Imported.Devices
	}

	return imported, "", nil
}
