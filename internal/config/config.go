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

// Package config loads and validates the proxy's YAML configuration
// file: exactly one of a static endpoint/filter list or a dynamic
// management-server list, plus the proxy and admin listen addresses.
package config

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/quilkin-proxy/quilkin/internal/endpoint"
	"github.com/quilkin-proxy/quilkin/internal/filters"
)

// DefaultConfigPath is used when QUILKIN_CONFIG is unset.
const DefaultConfigPath = "./quilkin.yaml"

// UnixFallbackConfigPath is tried, on Unix only, when
// DefaultConfigPath does not exist.
const UnixFallbackConfigPath = "/etc/quilkin/quilkin.yaml"

const (
	defaultProxyPort  = 7000
	defaultAdminAddr  = "[::]:8000"
)

// Config is the decoded, validated contents of the proxy's
// configuration file.
type Config struct {
	Version string        `yaml:"version"`
	Proxy   ProxyConfig   `yaml:"proxy"`
	Admin   AdminConfig   `yaml:"admin"`
	Static  *StaticConfig `yaml:"static"`
	Dynamic *DynamicConfig `yaml:"dynamic"`
}

// ProxyConfig names the proxy instance and its listening port.
type ProxyConfig struct {
	ID   string `yaml:"id"`
	Port uint16 `yaml:"port"`
}

// AdminConfig names the admin HTTP listen address.
type AdminConfig struct {
	Address string `yaml:"address"`
}

// StaticConfig is a fixed filter chain and endpoint list, used when no
// control plane is configured.
type StaticConfig struct {
	Filters   []FilterConfig   `yaml:"filters"`
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

// FilterConfig names one filter in a static chain plus its opaque
// per-filter configuration block.
type FilterConfig struct {
	Name   string    `yaml:"name"`
	Config yaml.Node `yaml:"config"`
}

// EndpointConfig is one statically configured upstream.
type EndpointConfig struct {
	Address  string                 `yaml:"address"`
	Metadata EndpointMetadataConfig `yaml:"metadata"`
}

// EndpointMetadataConfig carries the quilkin.dev routing-token
// namespace; other namespaces are ignored.
type EndpointMetadataConfig struct {
	QuilkinDev *QuilkinMetadataConfig `yaml:"quilkin.dev"`
}

// QuilkinMetadataConfig is the quilkin.dev metadata namespace's
// payload: base64-encoded routing tokens.
type QuilkinMetadataConfig struct {
	Tokens []string `yaml:"tokens"`
}

// DynamicConfig names the management servers to stream configuration
// from via xDS.
type DynamicConfig struct {
	ManagementServers []ManagementServerConfig `yaml:"management_servers"`
}

// ManagementServerConfig is one xDS management server address.
type ManagementServerConfig struct {
	Address string `yaml:"address"`
}

// ResolvePath implements spec.md §6's search order: QUILKIN_CONFIG
// overrides DefaultConfigPath; on Unix, UnixFallbackConfigPath is
// tried if the resolved default does not exist.
func ResolvePath() string {
	if p := os.Getenv("QUILKIN_CONFIG"); p != "" {
		return p
	}
	if runtime.GOOS != "windows" {
		if _, err := os.Stat(DefaultConfigPath); err != nil {
			if _, err := os.Stat(UnixFallbackConfigPath); err == nil {
				return UnixFallbackConfigPath
			}
		}
	}
	return DefaultConfigPath
}

// Load reads, strictly decodes and validates the configuration file
// at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, parseErr(fmt.Errorf("read %s: %w", path, err))
	}
	return Parse(raw)
}

// Parse strictly decodes raw YAML bytes and validates the result. An
// unknown top-level (or nested struct) field produces a *Error whose
// message contains "unknown field", prefixed to yaml.v3's own
// KnownFields diagnostic ("field X not found in type Y").
func Parse(raw []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		if strings.Contains(err.Error(), "not found in type") {
			err = fmt.Errorf("unknown field: %w", err)
		}
		return nil, parseErr(err)
	}

	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Proxy.Port == 0 {
		c.Proxy.Port = defaultProxyPort
	}
	if c.Admin.Address == "" {
		c.Admin.Address = defaultAdminAddr
	}
}

func (c *Config) validate() error {
	if (c.Static == nil) == (c.Dynamic == nil) {
		return &Error{Kind: BothOrNeither, Field: "static/dynamic"}
	}
	if c.Static != nil {
		return c.Static.validate()
	}
	return c.Dynamic.validate()
}

func (s *StaticConfig) validate() error {
	if len(s.Endpoints) == 0 {
		return emptyListErr("static.endpoints")
	}

	seen := make(map[string]struct{}, len(s.Endpoints))
	for _, ep := range s.Endpoints {
		if _, dup := seen[ep.Address]; dup {
			return notUniqueErr("static.endpoints.address")
		}
		seen[ep.Address] = struct{}{}

		if ep.Metadata.QuilkinDev == nil {
			continue
		}
		for _, tok := range ep.Metadata.QuilkinDev.Tokens {
			if _, err := base64.StdEncoding.DecodeString(tok); err != nil {
				return invalidTokenErr("static.endpoints.metadata.quilkin\\.dev.tokens", err)
			}
		}
	}

	for _, f := range s.Filters {
		if !filters.Known(f.Name) {
			return parseErr(fmt.Errorf("unknown filter %q", f.Name))
		}
	}
	return nil
}

func (d *DynamicConfig) validate() error {
	if len(d.ManagementServers) == 0 {
		return emptyListErr("dynamic.management_servers")
	}
	for _, s := range d.ManagementServers {
		if _, err := url.ParseRequestURI(ensureScheme(s.Address)); err != nil {
			return invalidURLErr("dynamic.management_servers.address", err)
		}
	}
	return nil
}

func ensureScheme(s string) string {
	if u, err := url.Parse(s); err == nil && u.Scheme != "" {
		return s
	}
	return "dns:///" + s
}

// ResolveEndpoints converts the static endpoint list into the
// proxy's runtime Endpoint representation.
func (s *StaticConfig) ResolveEndpoints() ([]endpoint.Endpoint, error) {
	out := make([]endpoint.Endpoint, 0, len(s.Endpoints))
	for _, ec := range s.Endpoints {
		addr, err := endpoint.NewAddress(ec.Address)
		if err != nil {
			return nil, invalidURLErr("static.endpoints.address", err)
		}

		md := endpoint.Metadata{Extra: make(map[string]string)}
		if ec.Metadata.QuilkinDev != nil {
			for _, tok := range ec.Metadata.QuilkinDev.Tokens {
				decoded, err := base64.StdEncoding.DecodeString(tok)
				if err != nil {
					return nil, invalidTokenErr("static.endpoints.metadata.quilkin\\.dev.tokens", err)
				}
				md.Tokens = append(md.Tokens, decoded)
			}
		}

		out = append(out, endpoint.Endpoint{Address: addr, Metadata: md})
	}
	return out, nil
}

// BuildChain instantiates the static filter chain in configured
// order, version 0 (the only version a static config ever has).
func (s *StaticConfig) BuildChain(caps filters.Capabilities) (*filters.Chain, error) {
	built := make([]filters.Filter, 0, len(s.Filters))
	for _, fc := range s.Filters {
		cfgBytes, err := yaml.Marshal(fc.Config)
		if err != nil {
			return nil, parseErr(fmt.Errorf("re-marshal config for filter %q: %w", fc.Name, err))
		}
		f, err := filters.Build(fc.Name, cfgBytes, caps)
		if err != nil {
			return nil, parseErr(err)
		}
		built = append(built, f)
	}
	return filters.NewChain(0, built), nil
}
