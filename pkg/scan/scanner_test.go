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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isolapurr/hubmon/pkg/deviceapi"
	"github.com/isolapurr/hubmon/pkg/logger"
	"github.com/isolapurr/hubmon/pkg/models"
)

type fakeProber struct {
	probe func(baseURL string) (*models.DeviceInfoResponse, *deviceapi.Error)
}

func (f *fakeProber) GetInfo(_ context.Context, baseURL string) (*models.DeviceInfoResponse, *deviceapi.Error) {
	return f.probe(baseURL)
}

type recordingSink struct {
	mu               sync.Mutex
	progress         []int
	results          map[string]*models.DeviceInfoResponse
	doneCount        int
	preflightBlocked bool
	done             chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		results: make(map[string]*models.DeviceInfoResponse),
		done:    make(chan struct{}, 1),
	}
}

func (r *recordingSink) ScanProgress(done int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.progress = append(r.progress, done)
}

func (r *recordingSink) ScanResult(host string, info *models.DeviceInfoResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.results[host] = info
}

func (r *recordingSink) ScanDone(preflightBlocked bool) {
	r.mu.Lock()
	r.doneCount++
	r.preflightBlocked = preflightBlocked
	r.mu.Unlock()

	r.done <- struct{}{}
}

func (r *recordingSink) wait(t *testing.T) {
	t.Helper()

	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("scan did not complete")
	}
}

func hubInfo(deviceID string) *models.DeviceInfoResponse {
	var info models.DeviceInfoResponse
	info.Device.DeviceID = deviceID
	info.Device.Firmware = models.Firmware{Name: models.FirmwareName, Version: "1.0.0"}

	return &info
}

func TestScannerReportsMatchesAndProgress(t *testing.T) {
	hosts := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"}

	prober := &fakeProber{probe: func(baseURL string) (*models.DeviceInfoResponse, *deviceapi.Error) {
		if baseURL == "http://10.0.0.3" {
			return hubInfo("hub-3"), nil
		}

		return nil, &deviceapi.Error{Kind: deviceapi.KindOffline, Message: "device unreachable"}
	}}

	sink := newRecordingSink()
	scanner := NewScanner(prober, 3, logger.NewTestLogger())

	scanner.Start(context.Background(), hosts, sink)
	sink.wait(t)

	sink.mu.Lock()
	defer sink.mu.Unlock()

	require.Len(t, sink.results, 1)
	assert.Equal(t, "hub-3", sink.results["10.0.0.3"].Device.DeviceID)

	assert.Len(t, sink.progress, len(hosts))
	assert.Contains(t, sink.progress, len(hosts))

	assert.Equal(t, 1, sink.doneCount)
	assert.False(t, sink.preflightBlocked)
}

func TestScannerFlagsPreflightBlocked(t *testing.T) {
	prober := &fakeProber{probe: func(baseURL string) (*models.DeviceInfoResponse, *deviceapi.Error) {
		if baseURL == "http://10.0.0.2" {
			return nil, &deviceapi.Error{Kind: deviceapi.KindPreflightBlocked}
		}

		return nil, &deviceapi.Error{Kind: deviceapi.KindOffline}
	}}

	sink := newRecordingSink()
	scanner := NewScanner(prober, 2, logger.NewTestLogger())

	scanner.Start(context.Background(), []string{"10.0.0.1", "10.0.0.2"}, sink)
	sink.wait(t)

	sink.mu.Lock()
	defer sink.mu.Unlock()

	assert.True(t, sink.preflightBlocked)
	assert.Empty(t, sink.results)
}

func TestScannerCancelDropsInFlightResults(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	prober := &fakeProber{probe: func(_ string) (*models.DeviceInfoResponse, *deviceapi.Error) {
		select {
		case started <- struct{}{}:
		default:
		}

		<-release

		return hubInfo("hub-1"), nil
	}}

	sink := newRecordingSink()
	scanner := NewScanner(prober, 1, logger.NewTestLogger())

	scanner.Start(context.Background(), []string{"10.0.0.1"}, sink)

	<-started
	scanner.Cancel()
	close(release)

	// The superseded run must stay silent: no result, no completion.
	time.Sleep(50 * time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()

	assert.Empty(t, sink.results)
	assert.Empty(t, sink.progress)
	assert.Zero(t, sink.doneCount)
}

func TestScannerNewRunSupersedesOld(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	prober := &fakeProber{probe: func(baseURL string) (*models.DeviceInfoResponse, *deviceapi.Error) {
		if baseURL == "http://10.0.0.1" {
			select {
			case started <- struct{}{}:
			default:
			}

			<-release
		}

		return nil, &deviceapi.Error{Kind: deviceapi.KindOffline}
	}}

	sink := newRecordingSink()
	scanner := NewScanner(prober, 1, logger.NewTestLogger())

	first := scanner.Start(context.Background(), []string{"10.0.0.1"}, sink)
	<-started

	second := scanner.Start(context.Background(), []string{"10.0.0.2"}, sink)
	assert.Greater(t, second, first)

	sink.wait(t)
	close(release)

	time.Sleep(50 * time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()

	// Only the second run is allowed to complete.
	assert.Equal(t, 1, sink.doneCount)
}
