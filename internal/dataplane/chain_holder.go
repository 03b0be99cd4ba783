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

package dataplane

import (
	"sync/atomic"

	"github.com/quilkin-proxy/quilkin/internal/filters"
)

// ChainHolder publishes the currently active FilterChain as a
// lock-free immutable snapshot. Configuration updates call Store with
// a brand new Chain; every in-flight and future datagram reads
// through Load, so a swap is atomic with respect to every worker and
// every session reader without any of them taking a lock.
type ChainHolder struct {
	current atomic.Pointer[filters.Chain]
}

// NewChainHolder constructs a holder seeded with an initial chain.
func NewChainHolder(initial *filters.Chain) *ChainHolder {
	h := &ChainHolder{}
	if initial == nil {
		initial = filters.NewChain(0, nil)
	}
	h.current.Store(initial)
	return h
}

// Store publishes a new chain as the current one.
func (h *ChainHolder) Store(chain *filters.Chain) {
	h.current.Store(chain)
}

// Load returns the currently active chain.
func (h *ChainHolder) Load() *filters.Chain {
	return h.current.Load()
}

// Current implements session.ChainProvider.
func (h *ChainHolder) Current() *filters.Chain {
	return h.Load()
}
