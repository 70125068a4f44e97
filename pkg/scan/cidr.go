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

// Package scan expands CIDR ranges and probes them for hub devices with a
// bounded worker pool.
package scan

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultMaxHosts is the ceiling on enumerated hosts for a single scan.
const DefaultMaxHosts = 1024

// Range is a parsed CIDR: the canonical network/prefix form and the ordered
// host list to probe.
type Range struct {
	CIDR  string
	Hosts []string
}

// ParseCIDR validates and expands an IPv4 CIDR string. maxHosts <= 0 means
// DefaultMaxHosts. The network and broadcast addresses are excluded for
// prefixes <= 30 with at least four addresses; hosts come back ascending.
func ParseCIDR(raw string, maxHosts int) (*Range, error) {
	if maxHosts <= 0 {
		maxHosts = DefaultMaxHosts
	}

	cidr := strings.TrimSpace(raw)
	if cidr == "" {
		return nil, ErrCIDRRequired
	}

	ipRaw, prefixRaw, found := strings.Cut(cidr, "/")
	if !found || ipRaw == "" || prefixRaw == "" {
		return nil, ErrCIDRFormat
	}

	prefix, err := strconv.Atoi(prefixRaw)
	if err != nil || prefix < 0 || prefix > 32 {
		return nil, ErrCIDRPrefix
	}

	ip, ok := parseIPv4(ipRaw)
	if !ok {
		return nil, ErrCIDRAddress
	}

	var mask uint32
	if prefix > 0 {
		mask = ^uint32(0) << (32 - prefix)
	}

	network := ip & mask

	size := int64(1)
	if prefix < 32 {
		size = int64(1) << (32 - prefix)
	}

	if size > int64(maxHosts) {
		return nil, fmt.Errorf("%w (>%d hosts)", ErrRangeTooLarge, maxHosts)
	}

	first := int64(network)
	last := first + size - 1

	// Network and broadcast addresses are not probeable hosts on real
	// subnets; tiny ranges (/31, /32) have no such addresses.
	skipEdges := prefix <= 30 && size >= 4

	hosts := make([]string, 0, size)

	for addr := first; addr <= last; addr++ {
		if skipEdges && (addr == first || addr == last) {
			continue
		}

		hosts = append(hosts, formatIPv4(uint32(addr)))
	}

	return &Range{
		CIDR:  fmt.Sprintf("%s/%d", formatIPv4(network), prefix),
		Hosts: hosts,
	}, nil
}

func parseIPv4(raw string) (uint32, bool) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 4 {
		return 0, false
	}

	var ip uint32

	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 {
			return 0, false
		}

		ip = ip<<8 | uint32(n)
	}

	return ip, true
}

func formatIPv4(v uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", v>>24&255, v>>16&255, v>>8&255, v&255)
}
