// Licensed to the Apache Software Foundation (ASF) under one or more
// contributor license agreements.  See the NOTICE file distributed with
// this work for additional information regarding copyright ownership.
// The ASF licenses this file to You under the Apache License, Version 2.0
// (the "License"); you may not use this file except in compliance with
// the License.  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package netutil renders network addresses in URL safe form and parses
// port range definitions such as "50000-50050, 50100-50200,51234".
package netutil

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// AddressToURLString encodes an IP address so it can be embedded into a URL:
// IPv4 addresses render in plain dotted form, IPv6 addresses are normalized
// and enclosed in brackets.
func AddressToURLString(ip net.IP) string {
	if ip.To4() != nil {
		return ip.String()
	}
	return "[" + ip.String() + "]"
}

// AddressAndPortToURLString encodes an IP address and port in URL safe
// "host:port" form.
func AddressAndPortToURLString(ip net.IP, port int) string {
	return fmt.Sprintf("%s:%d", AddressToURLString(ip), port)
}

// SocketAddressToURLString encodes a TCP address in URL safe "host:port" form.
func SocketAddressToURLString(addr *net.TCPAddr) string {
	return AddressAndPortToURLString(addr.IP, addr.Port)
}

// ParsePortRange expands a port range definition into the ordered list of
// distinct ports it names. A definition is a comma separated sequence of
// single ports and inclusive "lower-upper" ranges; whitespace around entries
// is ignored. Malformed or out of range entries are an error.
func ParsePortRange(definition string) ([]int, error) {
	var ports []int
	seen := make(map[int]bool)
	add := func(p int) {
		if !seen[p] {
			seen[p] = true
			ports = append(ports, p)
		}
	}
	for _, entry := range strings.Split(definition, ",") {
		entry = strings.TrimSpace(entry)
		if lower, upper, isRange := strings.Cut(entry, "-"); isRange {
			lo, err := parsePort(lower)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid lower bound in range %q", entry)
			}
			hi, err := parsePort(upper)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid upper bound in range %q", entry)
			}
			if hi < lo {
				return nil, errors.Errorf("descending port range %q", entry)
			}
			for p := lo; p <= hi; p++ {
				add(p)
			}
		} else {
			p, err := parsePort(entry)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid port %q", entry)
			}
			add(p)
		}
	}
	return ports, nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if p < 0 || p > 65535 {
		return 0, errors.Errorf("port %d out of range", p)
	}
	return p, nil
}
