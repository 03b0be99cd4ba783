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

// Package debug implements a pass-through filter that logs every
// datagram it sees, at V(1), without modifying it. It exists to let an
// operator insert observability at an arbitrary point in a chain
// without changing forwarding behaviour.
package debug

import (
	"fmt"

	"github.com/go-logr/logr"
	"gopkg.in/yaml.v3"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/quilkin-proxy/quilkin/internal/filters"
)

// Name is the filter's stable dotted identifier.
const Name = "quilkin.filters.debug.v1alpha1.Debug"

func init() {
	filters.Register(Name, func(rawConfig []byte, caps filters.Capabilities) (filters.Filter, error) {
		var cfg Config
		if err := yaml.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("debug: decode config: %w", err)
		}
		return New(cfg), nil
	})
}

// Config is the typed, YAML-decodable configuration for the debug
// filter.
type Config struct {
	// ID is included in every log line emitted by this instance, so a
	// chain with Debug at more than one position can be told apart.
	ID string `yaml:"id"`
}

// Debug logs the payload it sees on both the read and write path and
// otherwise leaves it untouched.
type Debug struct {
	id  string
	log logr.Logger
}

// New constructs a Debug filter.
func New(cfg Config) *Debug {
	log := logf.Log.WithName("filters.debug")
	if cfg.ID != "" {
		log = log.WithValues("id", cfg.ID)
	}
	return &Debug{id: cfg.ID, log: log}
}

func (d *Debug) Name() string { return Name }

func (d *Debug) Read(ctx *filters.ReadContext) error {
	d.log.V(1).Info("read", "source", ctx.Source.String(), "bytes", len(ctx.Payload))
	return nil
}

func (d *Debug) Write(ctx *filters.WriteContext) error {
	d.log.V(1).Info("write", "source", ctx.Source.String(), "dest", ctx.Dest.String(), "bytes", len(ctx.Payload))
	return nil
}
