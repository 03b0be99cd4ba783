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

// Package cluster holds the process-wide, concurrency-safe mapping
// from cluster key to the set of endpoints serving that cluster.
package cluster

import (
	"sync"

	"github.com/quilkin-proxy/quilkin/internal/endpoint"
)

// Key names a locality within the ClusterMap. The zero value is the
// default cluster, used when no control plane names clusters.
type Key string

// Default is the cluster key used when the control plane or static
// config does not name a locality.
const Default Key = ""

// Map is a process-wide mapping from cluster key to a set of
// Endpoints. Readers take the read side of an RWMutex; writers
// publish a brand new immutable inner map under the write lock so
// that readers never observe a partially-updated cluster.
type Map struct {
	mu    sync.RWMutex
	inner map[Key][]endpoint.Endpoint
}

// New creates an empty ClusterMap.
func New() *Map {
	return &Map{inner: make(map[Key][]endpoint.Endpoint)}
}

// InsertDefault replaces the default cluster's endpoints atomically.
// Per an explicit resolution of spec.md's open question, repeated
// calls overwrite rather than merge.
func (m *Map) InsertDefault(endpoints []endpoint.Endpoint) {
	m.Upsert(Default, endpoints)
}

// Upsert replaces a named cluster's endpoints atomically.
func (m *Map) Upsert(key Key, endpoints []endpoint.Endpoint) {
	deduped := dedupeByAddress(endpoints)

	m.mu.Lock()
	defer m.mu.Unlock()

	next := cloneInner(m.inner)
	next[key] = deduped
	m.inner = next
}

// Remove removes a cluster. In-flight sessions targeting its
// endpoints are not invalidated; further forwards simply stop
// resolving destinations through it.
func (m *Map) Remove(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.inner[key]; !ok {
		return
	}
	next := cloneInner(m.inner)
	delete(next, key)
	m.inner = next
}

// Endpoints returns a snapshot of a cluster's endpoints. The returned
// slice must not be mutated by the caller.
func (m *Map) Endpoints(key Key) []endpoint.Endpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inner[key]
}

// All returns a snapshot of every cluster and its endpoints.
func (m *Map) All() map[Key][]endpoint.Endpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneInner(m.inner)
}

// HasEndpoints is true iff any cluster is non-empty; used for
// readiness probes.
func (m *Map) HasEndpoints() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, eps := range m.inner {
		if len(eps) > 0 {
			return true
		}
	}
	return false
}

// FindByToken returns every endpoint across all clusters whose
// metadata contains tok.
func (m *Map) FindByToken(tok []byte) []endpoint.Endpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []endpoint.Endpoint
	for _, eps := range m.inner {
		for _, ep := range eps {
			if ep.Metadata.HasToken(tok) {
				matches = append(matches, ep)
			}
		}
	}
	return matches
}

func cloneInner(in map[Key][]endpoint.Endpoint) map[Key][]endpoint.Endpoint {
	out := make(map[Key][]endpoint.Endpoint, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// dedupeByAddress enforces the invariant that endpoint addresses
// within a cluster are unique: inserting a duplicate address replaces
// its metadata with the later occurrence's, preserving first-seen
// ordering.
func dedupeByAddress(endpoints []endpoint.Endpoint) []endpoint.Endpoint {
	order := make([]string, 0, len(endpoints))
	byKey := make(map[string]endpoint.Endpoint, len(endpoints))

	for _, ep := range endpoints {
		key := ep.Key()
		if _, ok := byKey[key]; !ok {
			order = append(order, key)
		}
		byKey[key] = ep
	}

	out := make([]endpoint.Endpoint, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	return out
}
