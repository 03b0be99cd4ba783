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

// Package firewall implements the allow/deny-by-CIDR-and-port filter.
// On no rule match the policy is default deny, on both read and
// write.
package firewall

import (
	"fmt"
	"net/netip"

	"gopkg.in/yaml.v3"

	"github.com/quilkin-proxy/quilkin/internal/filters"
)

// Name is the filter's stable dotted identifier.
const Name = "quilkin.filters.firewall.v1alpha1.Firewall"

func init() {
	filters.Register(Name, func(rawConfig []byte, caps filters.Capabilities) (filters.Filter, error) {
		var cfg Config
		if err := yaml.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("firewall: decode config: %w", err)
		}
		return New(cfg)
	})
}

// Action is Allow or Deny for a matching Rule.
type Action string

const (
	Allow Action = "Allow"
	Deny  Action = "Deny"
)

// PortRange is an inclusive range of ports, e.g. "10-100" or a single
// port "80".
type PortRange struct {
	Min, Max uint16
}

// Contains reports whether port falls within the range.
func (r PortRange) Contains(port uint16) bool {
	return port >= r.Min && port <= r.Max
}

// UnmarshalYAML accepts either a scalar "80" or a range "10-100".
func (r *PortRange) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	var lo, hi uint16
	if _, err := fmt.Sscanf(s, "%d-%d", &lo, &hi); err == nil {
		r.Min, r.Max = lo, hi
		return nil
	}
	if _, err := fmt.Sscanf(s, "%d", &lo); err == nil {
		r.Min, r.Max = lo, lo
		return nil
	}
	return fmt.Errorf("firewall: invalid port range %q", s)
}

// Rule matches a datagram iff its source IP is within any CIDR and
// its source port is within any PortRange.
type Rule struct {
	Action  Action        `yaml:"action"`
	Sources []netip.Prefix `yaml:"sources"`
	Ports   []PortRange   `yaml:"ports"`
}

// Matches reports whether addr satisfies this rule's source and port
// constraints.
func (r Rule) Matches(addr netip.AddrPort) bool {
	matchedCIDR := false
	for _, prefix := range r.Sources {
		if prefix.Contains(addr.Addr()) {
			matchedCIDR = true
			break
		}
	}
	if !matchedCIDR {
		return false
	}

	for _, pr := range r.Ports {
		if pr.Contains(addr.Port()) {
			return true
		}
	}
	return false
}

// Config is the typed, YAML-decodable configuration for the firewall
// filter.
type Config struct {
	OnRead  []Rule `yaml:"on_read"`
	OnWrite []Rule `yaml:"on_write"`
}

// Firewall allows or denies a datagram by source CIDR and port,
// evaluated independently for the read and write directions.
type Firewall struct {
	onRead  []Rule
	onWrite []Rule
}

// New constructs a Firewall filter from its configuration.
func New(cfg Config) (*Firewall, error) {
	return &Firewall{onRead: cfg.OnRead, onWrite: cfg.OnWrite}, nil
}

func (f *Firewall) Name() string { return Name }

func (f *Firewall) Read(ctx *filters.ReadContext) error {
	return evaluate(Name, f.onRead, ctx.Source.AddrPort)
}

func (f *Firewall) Write(ctx *filters.WriteContext) error {
	return evaluate(Name, f.onWrite, ctx.Source.AddrPort)
}

func evaluate(name string, rules []Rule, addr netip.AddrPort) error {
	for _, rule := range rules {
		if !rule.Matches(addr) {
			continue
		}
		switch rule.Action {
		case Allow:
			return nil
		case Deny:
			return filters.NewError(name, filters.FirewallDenied, "explicit deny rule matched")
		}
	}
	return filters.NewError(name, filters.FirewallDenied, "no rule matched; default deny")
}
