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

// Package loadbalancer implements a filter that, when a chain has not
// already selected destinations (e.g. TokenRouter is not in the
// chain), fills ReadContext.Destinations from the
// default cluster according to a configured policy.
package loadbalancer

import (
	"fmt"
	"math/rand"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/quilkin-proxy/quilkin/internal/cluster"
	"github.com/quilkin-proxy/quilkin/internal/endpoint"
	"github.com/quilkin-proxy/quilkin/internal/filters"
)

// Name is the filter's stable dotted identifier.
const Name = "quilkin.filters.load_balancer.v1alpha1.LoadBalancer"

func init() {
	filters.Register(Name, func(rawConfig []byte, caps filters.Capabilities) (filters.Filter, error) {
		var cfg Config
		if err := yaml.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("loadbalancer: decode config: %w", err)
		}
		return New(cfg, caps.Clusters)
	})
}

// Policy names the endpoint-selection strategy.
type Policy string

const (
	RoundRobin Policy = "RoundRobin"
	Random     Policy = "Random"
)

// Config is the typed, YAML-decodable configuration for the
// load-balancer filter.
type Config struct {
	Policy Policy `yaml:"policy"`
}

// LoadBalancer selects one endpoint from the default cluster per
// datagram according to Policy, and only when no earlier filter has
// already populated ReadContext.Destinations.
type LoadBalancer struct {
	policy   Policy
	clusters *cluster.Map
	next     atomic.Uint64
}

// New constructs a LoadBalancer filter. clusters must be non-nil: the
// filter has nothing to select from otherwise.
func New(cfg Config, clusters *cluster.Map) (*LoadBalancer, error) {
	if clusters == nil {
		return nil, fmt.Errorf("loadbalancer: requires a cluster map capability")
	}
	policy := cfg.Policy
	if policy == "" {
		policy = RoundRobin
	}
	if policy != RoundRobin && policy != Random {
		return nil, fmt.Errorf("loadbalancer: unknown policy %q", cfg.Policy)
	}
	return &LoadBalancer{policy: policy, clusters: clusters}, nil
}

func (lb *LoadBalancer) Name() string { return Name }

func (lb *LoadBalancer) Read(ctx *filters.ReadContext) error {
	if len(ctx.Destinations) > 0 {
		return nil
	}

	available := lb.clusters.Endpoints(cluster.Default)
	if len(available) == 0 {
		return filters.NewError(Name, filters.Dropped, "no endpoints in default cluster")
	}

	var chosen endpoint.Endpoint
	switch lb.policy {
	case Random:
		chosen = available[rand.Intn(len(available))]
	default:
		idx := lb.next.Add(1) - 1
		chosen = available[int(idx%uint64(len(available)))]
	}
	ctx.Destinations = []endpoint.Endpoint{chosen}
	return nil
}

// Write is a no-op: load balancing only applies to the forward path.
func (lb *LoadBalancer) Write(ctx *filters.WriteContext) error {
	return nil
}
