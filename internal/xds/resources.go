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
	"encoding/base64"
	"fmt"
	"net/netip"

	clusterv3 "github.com/envoyproxy/go-control-plane/envoy/config/cluster/v3"
	endpointv3 "github.com/envoyproxy/go-control-plane/envoy/config/endpoint/v3"

	"github.com/quilkin-proxy/quilkin/internal/cluster"
	"github.com/quilkin-proxy/quilkin/internal/endpoint"
)

// quilkinMetadataNamespace is the FilterMetadata key under which a
// LbEndpoint's routing tokens are carried, mirroring spec.md §6's
// static configuration shape (`quilkin.dev: {tokens: [base64]}`).
const quilkinMetadataNamespace = "quilkin.dev"

// clusterNamesFromResource reports a decoded CDS Cluster's name plus
// whether it requires a follow-up EDS subscription (discovery type
// EDS).
func clusterNamesFromResource(c *clusterv3.Cluster) (name string, needsEDS bool) {
	needsEDS = c.GetType() == clusterv3.Cluster_EDS
	return c.GetName(), needsEDS
}

// endpointsFromAssignment converts an EDS ClusterLoadAssignment into
// the proxy's own Endpoint representation. The first locality
// endpoint that cannot be converted fails the whole assignment.
func endpointsFromAssignment(a *endpointv3.ClusterLoadAssignment) ([]endpoint.Endpoint, error) {
	var out []endpoint.Endpoint
	for _, locality := range a.GetEndpoints() {
		for _, lbEp := range locality.GetLbEndpoints() {
			ep, err := convertLbEndpoint(lbEp)
			if err != nil {
				return nil, err
			}
			out = append(out, ep)
		}
	}
	return out, nil
}

func convertLbEndpoint(lbEp *endpointv3.LbEndpoint) (endpoint.Endpoint, error) {
	coreEp := lbEp.GetEndpoint()
	if coreEp == nil {
		return endpoint.Endpoint{}, fmt.Errorf("xds: lb endpoint missing address")
	}
	socket := coreEp.GetAddress().GetSocketAddress()
	if socket == nil {
		return endpoint.Endpoint{}, fmt.Errorf("xds: lb endpoint missing socket address")
	}

	addr, err := netip.ParseAddr(socket.GetAddress())
	if err != nil {
		return endpoint.Endpoint{}, fmt.Errorf("xds: parse endpoint address %q: %w", socket.GetAddress(), err)
	}
	addrPort := netip.AddrPortFrom(addr, uint16(socket.GetPortValue()))

	metadata := endpoint.Metadata{Extra: make(map[string]string)}
	if md := lbEp.GetMetadata(); md != nil {
		if fields, ok := md.GetFilterMetadata()[quilkinMetadataNamespace]; ok {
			if tokensValue, ok := fields.GetFields()["tokens"]; ok {
				for _, v := range tokensValue.GetListValue().GetValues() {
					tok, err := base64.StdEncoding.DecodeString(v.GetStringValue())
					if err != nil {
						return endpoint.Endpoint{}, fmt.Errorf("xds: decode token for %s: %w", socket.GetAddress(), err)
					}
					metadata.Tokens = append(metadata.Tokens, tok)
				}
			}
			for k, v := range fields.GetFields() {
				if k == "tokens" {
					continue
				}
				metadata.Extra[k] = v.GetStringValue()
			}
		}
	}

	return endpoint.Endpoint{
		Address:  endpoint.Address{AddrPort: addrPort},
		Metadata: metadata,
	}, nil
}

// clusterKeyOf converts an xDS cluster name to the proxy's ClusterKey
// space: the envoy-conventional name "default" (and the empty string)
// map to the proxy's own default cluster.
func clusterKeyOf(name string) cluster.Key {
	if name == "" || name == "default" {
		return cluster.Default
	}
	return cluster.Key(name)
}
