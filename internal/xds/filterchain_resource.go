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

package xds

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/quilkin-proxy/quilkin/internal/filters"
)

// FilterChainTypeURL identifies the proxy's own, locally-defined
// discovery resource carrying an ordered filter chain. Quilkin does
// not generate a dedicated protobuf schema for this (out of scope per
// spec.md §1's wire-format carve-out): the descriptor below is a
// plain YAML-shaped Go struct, and instances of it travel inside a
// DiscoveryResponse resource's `google.protobuf.Any.value` as raw YAML
// bytes rather than an encoded protobuf message.
const FilterChainTypeURL = "type.googleapis.com/quilkin.config.v1alpha1.FilterChain"

// filterChainDescriptor is the wire shape of a FilterChain resource:
// an ordered list of named, individually-configured filters, decoded
// the same way the static config file's `filters` list is.
type filterChainDescriptor struct {
	Filters []filterDescriptor `yaml:"filters"`
}

type filterDescriptor struct {
	Name   string `yaml:"name"`
	Config yaml.Node `yaml:"config"`
}

// buildChain instantiates one Filter per descriptor entry, in order,
// via the filters registry, and wraps them in a new immutable Chain
// at the given version.
func buildChain(version int, raw []byte, caps filters.Capabilities) (*filters.Chain, error) {
	var desc filterChainDescriptor
	if err := yaml.Unmarshal(raw, &desc); err != nil {
		return nil, fmt.Errorf("xds: decode filter chain resource: %w", err)
	}

	built := make([]filters.Filter, 0, len(desc.Filters))
	for _, fd := range desc.Filters {
		if !filters.Known(fd.Name) {
			return nil, fmt.Errorf("xds: unknown filter %q", fd.Name)
		}
		cfgBytes, err := yaml.Marshal(fd.Config)
		if err != nil {
			return nil, fmt.Errorf("xds: re-marshal config for filter %q: %w", fd.Name, err)
		}
		f, err := filters.Build(fd.Name, cfgBytes, caps)
		if err != nil {
			return nil, fmt.Errorf("xds: build filter %q: %w", fd.Name, err)
		}
		built = append(built, f)
	}

	return filters.NewChain(version, built), nil
}
