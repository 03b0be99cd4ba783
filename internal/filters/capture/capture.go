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

// Package capture implements a filter that strips a fixed-size prefix
// or suffix from every datagram it reads, discarding it. It exists
// independently of TokenRouter for chains that need the bytes removed
// without being used for endpoint selection (e.g. a shared framing
// header consumed earlier in the chain).
package capture

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/quilkin-proxy/quilkin/internal/filters"
)

// Name is the filter's stable dotted identifier.
const Name = "quilkin.filters.capture.v1alpha1.Capture"

func init() {
	filters.Register(Name, func(rawConfig []byte, caps filters.Capabilities) (filters.Filter, error) {
		var cfg Config
		if err := yaml.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("capture: decode config: %w", err)
		}
		return New(cfg)
	})
}

// Strategy names where the captured bytes live in the datagram.
type Strategy string

const (
	Suffix Strategy = "Suffix"
	Prefix Strategy = "Prefix"
)

// Config is the typed, YAML-decodable configuration for the capture
// filter.
type Config struct {
	Size     int      `yaml:"size"`
	Strategy Strategy `yaml:"strategy"`
}

// Capture strips Size bytes from the configured end of the payload.
type Capture struct {
	size     int
	strategy Strategy
}

// New constructs a Capture filter.
func New(cfg Config) (*Capture, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("capture: size must be a positive integer")
	}
	strategy := cfg.Strategy
	if strategy == "" {
		strategy = Suffix
	}
	if strategy != Suffix && strategy != Prefix {
		return nil, fmt.Errorf("capture: unknown strategy %q", cfg.Strategy)
	}
	return &Capture{size: cfg.Size, strategy: strategy}, nil
}

func (c *Capture) Name() string { return Name }

func (c *Capture) Read(ctx *filters.ReadContext) error {
	if len(ctx.Payload) < c.size {
		return filters.NewError(Name, filters.Dropped, "payload shorter than capture size")
	}
	switch c.strategy {
	case Prefix:
		ctx.Payload = ctx.Payload[c.size:]
	default:
		ctx.Payload = ctx.Payload[:len(ctx.Payload)-c.size]
	}
	return nil
}

// Write is a no-op: capture only applies to the forward path.
func (c *Capture) Write(ctx *filters.WriteContext) error {
	return nil
}
