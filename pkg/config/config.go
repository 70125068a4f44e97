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

// Package config loads the JSON configuration files for the monitor
// daemon and the companion agent.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/isolapurr/hubmon/pkg/logger"
)

// Defaults applied by Normalize.
const (
	DefaultPollIntervalMS     = 1000
	DefaultOfflineThresholdMS = 10000
	DefaultRequestTimeoutMS   = 4000
	DefaultScanConcurrency    = 12
	DefaultMaxScanHosts       = 1024

	defaultMonitorListenAddr = "127.0.0.1:8590"
	defaultAgentListenAddr   = "127.0.0.1:8591"
)

// MonitorConfig configures the hubmond daemon.
type MonitorConfig struct {
	ListenAddr         string         `json:"listen_addr"`
	AgentURL           string         `json:"agent_url"`
	DataDir            string         `json:"data_dir"`
	PollIntervalMS     int            `json:"poll_interval_ms"`
	OfflineThresholdMS int            `json:"offline_threshold_ms"`
	RequestTimeoutMS   int            `json:"request_timeout_ms"`
	ScanConcurrency    int            `json:"scan_concurrency"`
	MaxScanHosts       int            `json:"max_scan_hosts"`
	SecureContext      bool           `json:"secure_context"`
	Logging            *logger.Config `json:"logging,omitempty"`
}

// Normalize fills zero fields with defaults.
func (c *MonitorConfig) Normalize() {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultMonitorListenAddr
	}

	if c.DataDir == "" {
		c.DataDir = "."
	}

	if c.PollIntervalMS <= 0 {
		c.PollIntervalMS = DefaultPollIntervalMS
	}

	if c.OfflineThresholdMS <= 0 {
		c.OfflineThresholdMS = DefaultOfflineThresholdMS
	}

	if c.RequestTimeoutMS <= 0 {
		c.RequestTimeoutMS = DefaultRequestTimeoutMS
	}

	if c.ScanConcurrency <= 0 {
		c.ScanConcurrency = DefaultScanConcurrency
	}

	if c.MaxScanHosts <= 0 {
		c.MaxScanHosts = DefaultMaxScanHosts
	}

	if c.Logging == nil {
		c.Logging = logger.DefaultConfig()
	}
}

// AgentConfig configures the hubagent companion service.
type AgentConfig struct {
	ListenAddr string         `json:"listen_addr"`
	DBPath     string         `json:"db_path"`
	Logging    *logger.Config `json:"logging,omitempty"`
}

// Normalize fills zero fields with defaults.
func (c *AgentConfig) Normalize() {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultAgentListenAddr
	}

	if c.DBPath == "" {
		c.DBPath = "hubagent.db"
	}

	if c.Logging == nil {
		c.Logging = logger.DefaultConfig()
	}
}

// LoadFile reads a JSON config file into cfg. A missing path leaves cfg at
// its zero value so Normalize can supply defaults.
func LoadFile(path string, cfg interface{}) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return nil
}
