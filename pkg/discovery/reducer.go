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

import "github.com/isolapurr/hubmon/pkg/models"

// Action is the sealed set of snapshot transitions. Reduce is total over
// it: every action has a defined effect, including a no-op when its
// preconditions are not met.
type Action interface {
	isAction()
}

// Reset clears devices and scan state and returns the snapshot to service
// mode with the given status.
type Reset struct {
	Status Status
	Error  string
}

// SetSnapshot replaces mode, status, devices, error and scan wholesale. The
// IP-scan panel state is preserved from the prior snapshot.
type SetSnapshot struct {
	Snapshot Snapshot
}

// SetDevices replaces the device list.
type SetDevices struct {
	Devices []models.DiscoveredDevice
}

// SetError sets only the error field.
type SetError struct {
	Error string
}

// ToggleIPScan expands or collapses the IP-scan panel.
type ToggleIPScan struct {
	Expanded bool
	By       ExpandedBy
}

// StartScan switches to scan mode with a fresh progress record.
type StartScan struct {
	CIDR  string
	Total int
}

// ScanProgressed updates the completed-probe count of an active scan.
type ScanProgressed struct {
	Done int
}

// ScanDeviceFound merges one discovered device into the list.
type ScanDeviceFound struct {
	Device models.DiscoveredDevice
}

// ScanFinished marks the scan results as ready.
type ScanFinished struct{}

// ScanCancelled drops the scan progress; only scan-mode snapshots fall back
// to idle, a service-mode snapshot keeps its status.
type ScanCancelled struct{}

func (Reset) isAction()           {}
func (SetSnapshot) isAction()     {}
func (SetDevices) isAction()      {}
func (SetError) isAction()        {}
func (ToggleIPScan) isAction()    {}
func (StartScan) isAction()       {}
func (ScanProgressed) isAction()  {}
func (ScanDeviceFound) isAction() {}
func (ScanFinished) isAction()    {}
func (ScanCancelled) isAction()   {}

// Reduce applies one action to a snapshot and returns the next snapshot.
// Pure: neither input is mutated.
func Reduce(snapshot Snapshot, action Action) Snapshot {
	next := snapshot.clone()

	switch a := action.(type) {
	case Reset:
		next.Mode = ModeService
		next.Status = a.Status
		next.Devices = []models.DiscoveredDevice{}
		next.Error = a.Error
		next.Scan = nil

	case SetSnapshot:
		prior := next.IPScan
		next = a.Snapshot.clone()

		if prior != nil {
			next.IPScan = prior
		} else if next.IPScan == nil {
			next.IPScan = &IPScanPanel{Expanded: false}
		}

	case SetDevices:
		next.Devices = append([]models.DiscoveredDevice(nil), a.Devices...)

	case SetError:
		next.Error = a.Error

	case ToggleIPScan:
		if next.IPScan == nil {
			next.IPScan = &IPScanPanel{}
		}

		next.IPScan.Expanded = a.Expanded
		next.IPScan.ExpandedBy = a.By

	case StartScan:
		next.Mode = ModeScan
		next.Status = StatusScanning
		next.Error = ""
		next.Scan = &ScanState{CIDR: a.CIDR, Done: 0, Total: a.Total}

	case ScanProgressed:
		// Workers report counts concurrently; a stale count must never
		// move the published counter backwards.
		if next.Scan != nil && a.Done > next.Scan.Done {
			next.Scan.Done = a.Done
		}

	case ScanDeviceFound:
		next.Devices = MergeDiscoveredDevice(next.Devices, a.Device)

	case ScanFinished:
		next.Status = StatusReady

	case ScanCancelled:
		if next.Mode == ModeScan {
			next.Status = StatusIdle
		}

		next.Scan = nil
	}

	return next
}
