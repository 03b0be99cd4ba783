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

// Package localratelimit implements a filter that drops datagrams
// once a per-instance token bucket is exhausted, bounding the rate of
// traffic a single proxy process will forward on the read path.
package localratelimit

import (
	"fmt"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/quilkin-proxy/quilkin/internal/filters"
)

// Name is the filter's stable dotted identifier.
const Name = "quilkin.filters.local_rate_limit.v1alpha1.LocalRateLimit"

func init() {
	filters.Register(Name, func(rawConfig []byte, caps filters.Capabilities) (filters.Filter, error) {
		var cfg Config
		if err := yaml.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("localratelimit: decode config: %w", err)
		}
		return New(cfg)
	})
}

// Config is the typed, YAML-decodable configuration for the
// local-rate-limit filter.
type Config struct {
	// MaxPacketsPerSecond bounds the sustained forward rate. It must
	// be a positive integer.
	MaxPacketsPerSecond int `yaml:"max_packets_per_second"`
}

// LocalRateLimit drops datagrams once the configured token bucket is
// exhausted. The bucket's burst equals its per-second rate, so a full
// bucket permits one second's worth of traffic to pass instantaneously
// before throttling engages.
type LocalRateLimit struct {
	limiter *rate.Limiter
}

// New constructs a LocalRateLimit filter.
func New(cfg Config) (*LocalRateLimit, error) {
	if cfg.MaxPacketsPerSecond <= 0 {
		return nil, fmt.Errorf("localratelimit: max_packets_per_second must be a positive integer")
	}
	limit := rate.Limit(cfg.MaxPacketsPerSecond)
	return &LocalRateLimit{limiter: rate.NewLimiter(limit, cfg.MaxPacketsPerSecond)}, nil
}

func (l *LocalRateLimit) Name() string { return Name }

func (l *LocalRateLimit) Read(ctx *filters.ReadContext) error {
	if !l.limiter.Allow() {
		return filters.NewError(Name, filters.RateLimitExceeded, "token bucket exhausted")
	}
	return nil
}

// Write is a no-op: the limit only applies to the forward path.
func (l *LocalRateLimit) Write(ctx *filters.WriteContext) error {
	return nil
}
