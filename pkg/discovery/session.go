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

package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/isolapurr/hubmon/pkg/logger"
	"github.com/isolapurr/hubmon/pkg/models"
	"github.com/isolapurr/hubmon/pkg/scan"
)

// preflightBlockedHint is shown once per scan when any probe was rejected by
// a private-network preflight.
const preflightBlockedHint = "Local network access blocked (PNA/CORS preflight). " +
	"Try allowing private network access, or use Manual add."

// serviceUnavailableHint explains the headless service-discovery fallback.
const serviceUnavailableHint = "mDNS/DNS-SD discovery is unavailable. " +
	"You can still use IP scan (advanced) or Manual add."

// Session owns one discovery snapshot and drives the subnet scanner into
// it. All snapshot changes go through the reducer under a single lock, so
// the snapshot is single-writer even though scan events arrive from worker
// goroutines. Closing the session (or starting a new scan) supersedes any
// scan in flight through the scanner's run id.
type Session struct {
	scanner  *scan.Scanner
	maxHosts int
	logger   logger.Logger
	now      func() time.Time

	mu       sync.Mutex
	snapshot Snapshot
}

// NewSession creates a session in service mode. Without an mDNS backend the
// service side reports unavailable with a hint; IP scan remains usable.
func NewSession(scanner *scan.Scanner, maxHosts int, log logger.Logger) *Session {
	s := &Session{
		scanner:  scanner,
		maxHosts: maxHosts,
		logger:   log.WithComponent("discovery"),
		now:      time.Now,
	}

	s.snapshot = NewSnapshot(StatusUnavailable, 0)
	s.snapshot.Error = serviceUnavailableHint

	return s
}

// Snapshot returns an independent copy of the current snapshot.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot.clone()
}

// Dispatch applies one action through the reducer.
func (s *Session) Dispatch(action Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = Reduce(s.snapshot, action)
}

// StartScan parses the CIDR and launches a scan over its hosts. A parse
// failure lands in the snapshot's error field and is also returned. Any
// previous scan is superseded.
func (s *Session) StartScan(ctx context.Context, cidr string) error {
	parsed, err := scan.ParseCIDR(cidr, s.maxHosts)
	if err != nil {
		s.Dispatch(SetError{Error: err.Error()})

		return err
	}

	s.Dispatch(StartScan{CIDR: parsed.CIDR, Total: len(parsed.Hosts)})

	run := s.scanner.Start(ctx, parsed.Hosts, s)

	s.logger.Info().
		Str("cidr", parsed.CIDR).
		Int("hosts", len(parsed.Hosts)).
		Uint64("run", run).
		Msg("IP scan started")

	return nil
}

// CancelScan stops the active scan, if any, and records the cancellation.
func (s *Session) CancelScan() {
	s.scanner.Cancel()
	s.Dispatch(ScanCancelled{})
}

// Reset cancels any scan and returns the snapshot to service mode.
func (s *Session) Reset(status Status, errMsg string) {
	s.scanner.Cancel()
	s.Dispatch(Reset{Status: status, Error: errMsg})
}

// Close tears the session down, dropping results from any scan still in
// flight.
func (s *Session) Close() {
	s.scanner.Cancel()
}

// ScanProgress implements scan.Sink.
func (s *Session) ScanProgress(done int) {
	s.Dispatch(ScanProgressed{Done: done})
}

// ScanResult implements scan.Sink. Probe responses that do not identify a
// matching hub are skipped silently.
func (s *Session) ScanResult(host string, info *models.DeviceInfoResponse) {
	device := ParseDiscoveredDeviceFromInfo("http://"+host, info, host, s.now())
	if device == nil {
		return
	}

	s.Dispatch(ScanDeviceFound{Device: *device})
}

// ScanDone implements scan.Sink.
func (s *Session) ScanDone(preflightBlocked bool) {
	if preflightBlocked {
		s.Dispatch(SetError{Error: preflightBlockedHint})
	}

	s.Dispatch(ScanFinished{})
}
