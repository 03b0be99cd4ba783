/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package endpoint defines the address and metadata shapes shared by
// the cluster map, the filter chain and the session table.
package endpoint

import (
	"bytes"
	"fmt"
	"net/netip"
)

// Address is a canonical host+port pair, IPv4 or IPv6.
type Address struct {
	netip.AddrPort
}

// NewAddress parses "host:port" into a canonical Address.
func NewAddress(s string) (Address, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("parse endpoint address %q: %w", s, err)
	}
	return Address{netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())}, nil
}

// String renders the address in canonical form.
func (a Address) String() string {
	return a.AddrPort.String()
}

// Equal reports whether two addresses are the same canonical endpoint.
func (a Address) Equal(other Address) bool {
	return a.AddrPort == other.AddrPort
}

// Metadata carries the routing tokens and free-form attributes
// attached to an Endpoint by the control plane or static config.
type Metadata struct {
	// Tokens is an ordered set of opaque byte strings used by the
	// TokenRouter filter to select this endpoint. Comparison is
	// byte-wise; order only affects round-trip of the ordered set,
	// not matching.
	Tokens [][]byte
	// Extra holds free-form key/value data that filters may consult
	// via capabilities passed at construction.
	Extra map[string]string
}

// HasToken reports whether tok is present in the metadata's token set.
func (m Metadata) HasToken(tok []byte) bool {
	for _, t := range m.Tokens {
		if bytes.Equal(t, tok) {
			return true
		}
	}
	return false
}

// Endpoint is a concrete upstream target: an address plus metadata.
type Endpoint struct {
	Address  Address
	Metadata Metadata
}

// Key returns the string used to index an Endpoint within a cluster
// for uniqueness and replacement purposes.
func (e Endpoint) Key() string {
	return e.Address.String()
}
