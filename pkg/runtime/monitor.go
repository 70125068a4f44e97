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

// Package runtime keeps live port state for every registered device. It
// polls each device on a fixed cadence, caches the last good reading
// across failures, and serializes user actions per port.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/isolapurr/hubmon/pkg/deviceapi"
	"github.com/isolapurr/hubmon/pkg/logger"
	"github.com/isolapurr/hubmon/pkg/models"
	"github.com/isolapurr/hubmon/pkg/notify"
)

const (
	defaultPollInterval     = 1 * time.Second
	defaultOfflineThreshold = 10 * time.Second
)

// ConnectionState is the derived reachability of a device.
type ConnectionState string

const (
	ConnectionUnknown ConnectionState = "unknown"
	ConnectionOnline  ConnectionState = "online"
	ConnectionOffline ConnectionState = "offline"
)

// PortsClient is the device transport surface the monitor needs.
type PortsClient interface {
	GetPorts(ctx context.Context, baseURL string) (*models.PortsResponse, *deviceapi.Error)
	ReplugPort(ctx context.Context, baseURL string, portID models.PortID) (*models.AcceptedResponse, *deviceapi.Error)
	SetPortPower(ctx context.Context, baseURL string, portID models.PortID, enabled bool) (*models.PowerResponse, *deviceapi.Error)
}

// DeviceLister is the registry surface the monitor needs. The monitor
// follows the registry: devices added mid-run get picked up on the next
// tick, removed devices get pruned.
type DeviceLister interface {
	List() []models.Device
	Get(id string) (models.Device, bool)
}

type deviceState struct {
	lastOkAt  *time.Time
	lastError *deviceapi.Error
	ports     map[models.PortID]models.Port
	pending   map[models.PortID]bool
	inflight  bool
}

// Config tunes the monitor; zero values take the defaults.
type Config struct {
	PollInterval     time.Duration
	OfflineThreshold time.Duration
	Clock            Clock
}

// Monitor owns the poll loop and the per-device state cache.
type Monitor struct {
	client   PortsClient
	devices  DeviceLister
	notifier notify.Notifier
	clock    Clock
	interval time.Duration
	offline  time.Duration
	logger   logger.Logger

	mu     sync.Mutex
	states map[string]*deviceState

	runCtx  context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewMonitor builds a monitor over the given transport and registry.
func NewMonitor(client PortsClient, devices DeviceLister, notifier notify.Notifier, cfg Config, log logger.Logger) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	if cfg.OfflineThreshold <= 0 {
		cfg.OfflineThreshold = defaultOfflineThreshold
	}

	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}

	return &Monitor{
		client:   client,
		devices:  devices,
		notifier: notifier,
		clock:    cfg.Clock,
		interval: cfg.PollInterval,
		offline:  cfg.OfflineThreshold,
		logger:   log.WithComponent("runtime"),
		states:   make(map[string]*deviceState),
		done:     make(chan struct{}),
	}
}

// Start launches the poll loop. The first sweep happens immediately, then
// every poll interval.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()

		return
	}

	m.started = true
	m.runCtx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.wg.Add(1)

	go m.run()
}

// Stop halts polling and waits for in-flight work.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()

		return
	}

	m.started = false
	m.mu.Unlock()

	m.cancel()
	close(m.done)
	m.wg.Wait()
}

func (m *Monitor) run() {
	defer m.wg.Done()

	m.sweep()

	ticker := m.clock.Ticker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-m.runCtx.Done():
			return
		case <-ticker.Chan():
			m.sweep()
		}
	}
}

// sweep reconciles the state map against the registry and starts one poll
// per device that has none in flight.
func (m *Monitor) sweep() {
	devices := m.devices.List()

	m.mu.Lock()

	known := make(map[string]struct{}, len(devices))
	for _, device := range devices {
		known[device.ID] = struct{}{}

		if _, ok := m.states[device.ID]; !ok {
			m.states[device.ID] = &deviceState{
				ports:   make(map[models.PortID]models.Port),
				pending: make(map[models.PortID]bool),
			}
		}
	}

	for id := range m.states {
		if _, ok := known[id]; !ok {
			delete(m.states, id)
		}
	}

	var toPoll []models.Device

	for _, device := range devices {
		state := m.states[device.ID]
		if state.inflight {
			continue
		}

		state.inflight = true

		toPoll = append(toPoll, device)
	}

	m.mu.Unlock()

	for _, device := range toPoll {
		m.wg.Add(1)

		go m.poll(device)
	}
}

func (m *Monitor) poll(device models.Device) {
	defer m.wg.Done()

	resp, apiErr := m.client.GetPorts(m.runCtx, device.BaseURL)

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[device.ID]
	if !ok {
		// Removed while the poll was in flight.
		return
	}

	state.inflight = false

	if apiErr != nil {
		state.lastError = apiErr

		return
	}

	ports := indexPorts(resp)
	if ports == nil {
		// A reachable device that answers without both ports is broken;
		// keep the previous good reading visible.
		state.lastError = deviceapi.InvalidResponse("response is missing port_a or port_c")

		return
	}

	now := m.clock.Now()
	state.lastOkAt = &now
	state.lastError = nil
	state.ports = ports
}

// indexPorts validates that both fixed ports are present and returns them
// keyed by id, or nil when the response is unusable.
func indexPorts(resp *models.PortsResponse) map[models.PortID]models.Port {
	if resp == nil {
		return nil
	}

	ports := make(map[models.PortID]models.Port, len(resp.Ports))

	for _, port := range resp.Ports {
		if port.PortID.Valid() {
			ports[port.PortID] = port
		}
	}

	for _, id := range models.AllPortIDs() {
		if _, ok := ports[id]; !ok {
			return nil
		}
	}

	return ports
}

// repoll schedules an immediate poll of one device, used after a
// successful action so the UI catches up before the next tick.
func (m *Monitor) repoll(device models.Device) {
	m.mu.Lock()

	state, ok := m.states[device.ID]
	if !ok || state.inflight {
		m.mu.Unlock()

		return
	}

	state.inflight = true
	m.mu.Unlock()

	m.wg.Add(1)

	go m.poll(device)
}

// SetPower toggles a port's downstream power. The port is flagged pending
// until the device answers; concurrent actions on the same port are
// rejected as busy.
func (m *Monitor) SetPower(ctx context.Context, deviceID string, portID models.PortID, enabled bool) *deviceapi.Error {
	return m.runAction(ctx, deviceID, portID, func(ctx context.Context, device models.Device) *deviceapi.Error {
		resp, apiErr := m.client.SetPortPower(ctx, device.BaseURL, portID, enabled)
		if apiErr != nil {
			return apiErr
		}

		verb := "off"
		if resp.PowerEnabled {
			verb = "on"
		}

		m.notifier.Push(notify.Toast{
			Level:   notify.LevelSuccess,
			Message: fmt.Sprintf("%s: %s power %s", device.Name, portID.Label(), verb),
		})

		return nil
	})
}

// Replug pulses a port's data lines.
func (m *Monitor) Replug(ctx context.Context, deviceID string, portID models.PortID) *deviceapi.Error {
	return m.runAction(ctx, deviceID, portID, func(ctx context.Context, device models.Device) *deviceapi.Error {
		if _, apiErr := m.client.ReplugPort(ctx, device.BaseURL, portID); apiErr != nil {
			return apiErr
		}

		m.notifier.Push(notify.Toast{
			Level:   notify.LevelSuccess,
			Message: fmt.Sprintf("%s: %s replug accepted", device.Name, portID.Label()),
		})

		return nil
	})
}

func (m *Monitor) runAction(ctx context.Context, deviceID string, portID models.PortID,
	action func(ctx context.Context, device models.Device) *deviceapi.Error) *deviceapi.Error {
	device, ok := m.devices.Get(deviceID)
	if !ok {
		return deviceapi.InvalidResponse("unknown device")
	}

	if !portID.Valid() {
		return deviceapi.InvalidResponse("unknown port")
	}

	m.mu.Lock()

	state, ok := m.states[deviceID]
	if !ok {
		state = &deviceState{
			ports:   make(map[models.PortID]models.Port),
			pending: make(map[models.PortID]bool),
		}
		m.states[deviceID] = state
	}

	if state.pending[portID] || state.ports[portID].State.Busy {
		m.mu.Unlock()
		m.notifier.Push(notify.Toast{
			Level:   notify.LevelWarning,
			Message: fmt.Sprintf("%s: %s is busy", device.Name, portID.Label()),
		})

		return &deviceapi.Error{Kind: deviceapi.KindBusy, Message: "action already in progress"}
	}

	state.pending[portID] = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		if state, ok := m.states[deviceID]; ok {
			delete(state.pending, portID)
		}
		m.mu.Unlock()
	}()

	apiErr := action(ctx, device)
	if apiErr != nil {
		m.notifyActionFailure(device, portID, apiErr)

		return apiErr
	}

	m.repoll(device)

	return nil
}

func (m *Monitor) notifyActionFailure(device models.Device, portID models.PortID, apiErr *deviceapi.Error) {
	if apiErr.Kind == deviceapi.KindBusy {
		m.notifier.Push(notify.Toast{
			Level:   notify.LevelWarning,
			Message: fmt.Sprintf("%s: %s is busy", device.Name, portID.Label()),
		})

		return
	}

	m.notifier.Push(notify.Toast{
		Level:   notify.LevelError,
		Message: fmt.Sprintf("%s: %s error (%s)", device.Name, portID.Label(), apiErr.Kind),
	})
}

// ConnectionState derives reachability from lastOkAt alone: unknown until
// the first successful poll, offline once the last good poll ages past the
// threshold, online otherwise. Failures before the first success stay
// unknown; the error itself is reported through LastErrorLabel.
func (m *Monitor) ConnectionState(deviceID string) ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[deviceID]
	if !ok {
		return ConnectionUnknown
	}

	if state.lastOkAt == nil {
		return ConnectionUnknown
	}

	if m.clock.Now().Sub(*state.lastOkAt) >= m.offline {
		return ConnectionOffline
	}

	return ConnectionOnline
}

// LastOkAt returns the time of the last successful poll, or nil.
func (m *Monitor) LastOkAt(deviceID string) *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[deviceID]
	if !ok || state.lastOkAt == nil {
		return nil
	}

	t := *state.lastOkAt

	return &t
}

// LastErrorLabel returns the display label for the most recent failure, or
// the empty string after a clean poll.
func (m *Monitor) LastErrorLabel(deviceID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[deviceID]
	if !ok || state.lastError == nil {
		return ""
	}

	return state.lastError.Label()
}

// Port returns the cached reading for one port.
func (m *Monitor) Port(deviceID string, portID models.PortID) (models.Port, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[deviceID]
	if !ok {
		return models.Port{}, false
	}

	port, ok := state.ports[portID]

	return port, ok
}

// Pending reports whether an action is in flight on the port.
func (m *Monitor) Pending(deviceID string, portID models.PortID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[deviceID]

	return ok && state.pending[portID]
}

// PortBusy merges the device-reported busy flag with the local pending
// flag; either one gates further actions.
func (m *Monitor) PortBusy(deviceID string, portID models.PortID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[deviceID]
	if !ok {
		return false
	}

	return state.pending[portID] || state.ports[portID].State.Busy
}

// PortStatus is one port's cached reading plus the monitor's own flags.
type PortStatus struct {
	models.Port
	Pending bool `json:"pending"`
	Busy    bool `json:"busy"`
}

// DeviceStatus is the full readout for one device.
type DeviceStatus struct {
	DeviceID       string          `json:"deviceId"`
	Connection     ConnectionState `json:"connection"`
	LastOkAt       *string         `json:"lastOkAt"`
	LastErrorLabel string          `json:"lastErrorLabel,omitempty"`
	Ports          []PortStatus    `json:"ports"`
}

// Status assembles the readout for one device.
func (m *Monitor) Status(deviceID string) (DeviceStatus, bool) {
	connection := m.ConnectionState(deviceID)

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[deviceID]
	if !ok {
		return DeviceStatus{}, false
	}

	status := DeviceStatus{
		DeviceID:   deviceID,
		Connection: connection,
	}

	if state.lastOkAt != nil {
		formatted := state.lastOkAt.UTC().Format(time.RFC3339)
		status.LastOkAt = &formatted
	}

	if state.lastError != nil {
		status.LastErrorLabel = state.lastError.Label()
	}

	for _, id := range models.AllPortIDs() {
		port, ok := state.ports[id]
		if !ok {
			continue
		}

		status.Ports = append(status.Ports, PortStatus{
			Port:    port,
			Pending: state.pending[id],
			Busy:    state.pending[id] || port.State.Busy,
		})
	}

	return status, true
}

// StatusAll returns the readout for every registered device in registry
// order.
func (m *Monitor) StatusAll() []DeviceStatus {
	devices := m.devices.List()

	statuses := make([]DeviceStatus, 0, len(devices))

	for _, device := range devices {
		if status, ok := m.Status(device.ID); ok {
			statuses = append(statuses, status)
		}
	}

	return statuses
}
