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

// Package concatenate implements a filter that affixes a fixed byte
// sequence to the head or tail of every forwarded datagram.
package concatenate

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/quilkin-proxy/quilkin/internal/filters"
)

// Name is the filter's stable dotted identifier.
const Name = "quilkin.filters.concatenate.v1alpha1.Concatenate"

func init() {
	filters.Register(Name, func(rawConfig []byte, caps filters.Capabilities) (filters.Filter, error) {
		var cfg Config
		if err := yaml.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("concatenate: decode config: %w", err)
		}
		return New(cfg)
	})
}

// Placement names where Bytes is affixed.
type Placement string

const (
	Head Placement = "Head"
	Tail Placement = "Tail"
)

// Config is the typed, YAML-decodable configuration for the
// concatenate filter.
type Config struct {
	Placement Placement `yaml:"placement"`
	Bytes     []byte    `yaml:"bytes"`
}

// Concatenate affixes a configured byte sequence to every datagram on
// read, and strips it again on write so round-tripped traffic is
// unaffected by the addition.
type Concatenate struct {
	placement Placement
	bytes     []byte
}

// New constructs a Concatenate filter.
func New(cfg Config) (*Concatenate, error) {
	placement := cfg.Placement
	if placement == "" {
		placement = Tail
	}
	if placement != Head && placement != Tail {
		return nil, fmt.Errorf("concatenate: unknown placement %q", cfg.Placement)
	}
	return &Concatenate{placement: placement, bytes: cfg.Bytes}, nil
}

func (c *Concatenate) Name() string { return Name }

func (c *Concatenate) Read(ctx *filters.ReadContext) error {
	if len(c.bytes) == 0 {
		return nil
	}
	switch c.placement {
	case Head:
		ctx.Payload = append(append([]byte{}, c.bytes...), ctx.Payload...)
	default:
		ctx.Payload = append(append([]byte{}, ctx.Payload...), c.bytes...)
	}
	return nil
}

func (c *Concatenate) Write(ctx *filters.WriteContext) error {
	if len(c.bytes) == 0 {
		return nil
	}
	switch c.placement {
	case Head:
		if bytes.HasPrefix(ctx.Payload, c.bytes) {
			ctx.Payload = ctx.Payload[len(c.bytes):]
		}
	default:
		if bytes.HasSuffix(ctx.Payload, c.bytes) {
			ctx.Payload = ctx.Payload[:len(ctx.Payload)-len(c.bytes)]
		}
	}
	return nil
}
