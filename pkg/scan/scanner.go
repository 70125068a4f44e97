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

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/isolapurr/hubmon/pkg/deviceapi"
	"github.com/isolapurr/hubmon/pkg/logger"
	"github.com/isolapurr/hubmon/pkg/models"
)

const defaultConcurrency = 12

// InfoProber issues the device-info probe against a candidate base URL.
// Satisfied by *deviceapi.Client.
type InfoProber interface {
	GetInfo(ctx context.Context, baseURL string) (*models.DeviceInfoResponse, *deviceapi.Error)
}

// Sink receives scan events. Progress is a monotonically increasing count of
// completed probes, not an ordering guarantee over which host completed.
type Sink interface {
	ScanProgress(done int)
	ScanResult(host string, info *models.DeviceInfoResponse)
	ScanDone(preflightBlocked bool)
}

// Scanner probes the hosts of one CIDR range with a fixed-size worker pool.
// Runs are versioned by an incrementing run id: starting a new scan or
// cancelling bumps the id, and workers re-check it after every probe so
// stale-generation results are discarded silently. There is no hard cancel
// of in-flight probes beyond the per-request timeout.
type Scanner struct {
	prober      InfoProber
	concurrency int
	logger      logger.Logger
	runID       atomic.Uint64
}

// NewScanner creates a scanner. concurrency == 0 means the default of 12.
func NewScanner(prober InfoProber, concurrency int, log logger.Logger) *Scanner {
	if concurrency == 0 {
		concurrency = defaultConcurrency
	}

	return &Scanner{
		prober:      prober,
		concurrency: concurrency,
		logger:      log.WithComponent("scan"),
	}
}

// Cancel invalidates the current run, if any. In-flight probes finish but
// their results are dropped.
func (s *Scanner) Cancel() {
	s.runID.Add(1)
}

// Start launches a scan over hosts and returns immediately with the new run
// id. Any previous run is superseded. Events are delivered to sink from
// worker goroutines; ScanDone fires once, only if the run is still current.
func (s *Scanner) Start(ctx context.Context, hosts []string, sink Sink) uint64 {
	run := s.runID.Add(1)

	var (
		next             atomic.Int64
		done             atomic.Int64
		preflightBlocked atomic.Bool
		wg               sync.WaitGroup
	)

	worker := func() {
		defer wg.Done()

		for {
			if s.runID.Load() != run || ctx.Err() != nil {
				return
			}

			idx := next.Add(1) - 1
			if idx >= int64(len(hosts)) {
				return
			}

			host := hosts[idx]
			baseURL := "http://" + host

			info, probeErr := s.prober.GetInfo(ctx, baseURL)

			if s.runID.Load() != run {
				return
			}

			sink.ScanProgress(int(done.Add(1)))

			if probeErr != nil {
				if probeErr.Kind == deviceapi.KindPreflightBlocked {
					preflightBlocked.Store(true)
				}

				continue
			}

			sink.ScanResult(host, info)
		}
	}

	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)

		go worker()
	}

	go func() {
		wg.Wait()

		if s.runID.Load() != run {
			return
		}

		s.logger.Debug().
			Uint64("run", run).
			Int("hosts", len(hosts)).
			Msg("scan complete")

		sink.ScanDone(preflightBlocked.Load())
	}()

	return run
}
