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

// Package xds implements the DiscoveryClient: a long-lived,
// bidirectional streaming session to one of several management
// servers, modelled after the Aggregated Discovery Service pattern
// (type URLs, version_info, nonces, ACK/NACK) with reconnect backoff
// and server fail-over.
package xds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	clusterv3 "github.com/envoyproxy/go-control-plane/envoy/config/cluster/v3"
	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	endpointv3 "github.com/envoyproxy/go-control-plane/envoy/config/endpoint/v3"
	discoverygrpc "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"
	resourcev3 "github.com/envoyproxy/go-control-plane/pkg/resource/v3"
	"github.com/go-logr/logr"
	"google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"

	"github.com/quilkin-proxy/quilkin/internal/cluster"
	"github.com/quilkin-proxy/quilkin/internal/dataplane"
	"github.com/quilkin-proxy/quilkin/internal/filters"
)

// DefaultConnectTimeout bounds a single dial attempt.
const DefaultConnectTimeout = 5 * time.Second

// Options configures a Client.
type Options struct {
	// ManagementServers is tried in round-robin order; the index
	// advances on every reconnect attempt regardless of outcome.
	ManagementServers []string
	NodeID            string
	UserAgentName     string
	ConnectTimeout    time.Duration
	Backoff           BackoffConfig

	Clusters *cluster.Map
	Chain    *dataplane.ChainHolder
	Caps     filters.Capabilities
	Log      logr.Logger

	// Dialer is overridable for tests; defaults to grpc.NewClient
	// with insecure transport credentials.
	Dialer func(ctx context.Context, target string) (*grpc.ClientConn, error)
}

func (o *Options) setDefaults() {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.UserAgentName == "" {
		o.UserAgentName = "quilkin"
	}
	if o.Dialer == nil {
		o.Dialer = defaultDialer
	}
}

func defaultDialer(ctx context.Context, target string) (*grpc.ClientConn, error) {
	return grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// Client is the DiscoveryClient.
type Client struct {
	opts Options

	mu         sync.Mutex
	serverIdx  int
	chainVer   int
	clusterEDS map[string]struct{} // cluster names awaiting an EDS subscription

	recon *reconnector

	states map[string]*typeState
}

// New validates opts and constructs a Client.
func New(opts Options) (*Client, error) {
	opts.setDefaults()

	if len(opts.ManagementServers) == 0 {
		return nil, newPermanentError("management_servers", errors.New("at least one management server is required"))
	}
	for _, s := range opts.ManagementServers {
		if _, err := url.ParseRequestURI(ensureScheme(s)); err != nil {
			return nil, newPermanentError("management server URL", fmt.Errorf("%q: %w", s, err))
		}
	}

	bo := opts.Backoff
	if bo == (BackoffConfig{}) {
		bo = DefaultBackoffConfig
	}

	return &Client{
		opts:       opts,
		recon:      newReconnector(bo),
		clusterEDS: make(map[string]struct{}),
		states:     make(map[string]*typeState),
	}, nil
}

func ensureScheme(s string) string {
	if u, err := url.Parse(s); err == nil && u.Scheme != "" {
		return s
	}
	return "dns:///" + s
}

// Run drives the connect/stream/reconnect loop until ctx is
// cancelled. It returns nil on a clean shutdown, or a Permanent
// *Error if the client determines it can never succeed or the
// reconnect backoff is exhausted.
func (c *Client) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := c.connectAndStream(ctx)
		if err == nil || ctx.Err() != nil {
			return nil
		}

		var xerr *Error
		if errors.As(err, &xerr) && xerr.Severity == Permanent {
			c.opts.Log.Error(err, "xds: permanent error, shutting down with error")
			return xerr
		}

		c.opts.Log.V(1).Info("xds: stream error, reconnecting", "error", err)
		c.resetTypeStates()

		if waitErr := c.recon.wait(ctx); waitErr != nil {
			if ctx.Err() != nil {
				return nil
			}
			return newPermanentError("reconnect backoff exhausted", err)
		}
		c.advanceServer()
	}
}

func (c *Client) resetTypeStates() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.states {
		s.reset()
	}
}

func (c *Client) advanceServer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.serverIdx = (c.serverIdx + 1) % len(c.opts.ManagementServers)
}

func (c *Client) currentServer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.ManagementServers[c.serverIdx]
}

func (c *Client) typeState(typeURL string) *typeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[typeURL]
	if !ok {
		s = newTypeState()
		c.states[typeURL] = s
	}
	return s
}

// connectAndStream opens one stream, runs it to completion or error,
// and resets backoff on a successful connect.
func (c *Client) connectAndStream(ctx context.Context) error {
	target := c.currentServer()

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	conn, err := c.opts.Dialer(dialCtx, target)
	cancel()
	if err != nil {
		return newTransientError("dial "+target, err)
	}
	defer conn.Close()

	client := discoverygrpc.NewAggregatedDiscoveryServiceClient(conn)
	stream, err := client.StreamAggregatedResources(ctx)
	if err != nil {
		return newTransientError("open stream", err)
	}

	c.recon.reset()
	c.opts.Log.Info("xds: connected", "server", target)

	if err := c.sendInitial(stream, resourcev3.ClusterType); err != nil {
		return err
	}
	if err := c.sendInitial(stream, FilterChainTypeURL); err != nil {
		return err
	}

	return c.receiveLoop(ctx, stream)
}

func (c *Client) node() *corev3.Node {
	return &corev3.Node{Id: c.opts.NodeID, UserAgentName: c.opts.UserAgentName}
}

func (c *Client) sendInitial(stream discoverygrpc.AggregatedDiscoveryService_StreamAggregatedResourcesClient, typeURL string) error {
	st := c.typeState(typeURL)
	st.markPending()
	return stream.Send(&discoverygrpc.DiscoveryRequest{
		TypeUrl:       typeURL,
		VersionInfo:   "",
		ResourceNames: nil,
		ResponseNonce: "",
		Node:          c.node(),
	})
}

func (c *Client) sendACK(stream discoverygrpc.AggregatedDiscoveryService_StreamAggregatedResourcesClient, typeURL, version, nonce string) error {
	return stream.Send(&discoverygrpc.DiscoveryRequest{
		TypeUrl:       typeURL,
		VersionInfo:   version,
		ResponseNonce: nonce,
		Node:          c.node(),
	})
}

func (c *Client) sendNACK(stream discoverygrpc.AggregatedDiscoveryService_StreamAggregatedResourcesClient, typeURL, prevVersion, nonce, detail string) error {
	return stream.Send(&discoverygrpc.DiscoveryRequest{
		TypeUrl:       typeURL,
		VersionInfo:   prevVersion,
		ResponseNonce: nonce,
		ErrorDetail:   &status.Status{Code: int32(codes.InvalidArgument), Message: detail},
		Node:          c.node(),
	})
}

func (c *Client) receiveLoop(ctx context.Context, stream discoverygrpc.AggregatedDiscoveryService_StreamAggregatedResourcesClient) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return newTransientError("stream closed by server", err)
		}
		if err != nil {
			return newTransientError("stream recv", err)
		}

		if err := c.apply(resp); err != nil {
			st := c.typeState(resp.TypeUrl)
			st.reject(resp.Nonce, err.Error())
			ResponsesNacked.WithLabelValues(resp.TypeUrl).Inc()
			if sendErr := c.sendNACK(stream, resp.TypeUrl, st.lastAcceptedVer, resp.Nonce, err.Error()); sendErr != nil {
				return newTransientError("send nack", sendErr)
			}
			c.opts.Log.V(1).Info("xds: nacked response", "type_url", resp.TypeUrl, "error", err)
			continue
		}

		st := c.typeState(resp.TypeUrl)
		st.accept(resp.VersionInfo, resp.Nonce)
		ResponsesAcked.WithLabelValues(resp.TypeUrl).Inc()
		if err := c.sendACK(stream, resp.TypeUrl, resp.VersionInfo, resp.Nonce); err != nil {
			return newTransientError("send ack", err)
		}

		if followUp := c.pendingEDSSubscription(); len(followUp) > 0 {
			if err := c.subscribeEndpoints(stream, followUp); err != nil {
				return newTransientError("subscribe eds", err)
			}
		}
	}
}

func (c *Client) subscribeEndpoints(stream discoverygrpc.AggregatedDiscoveryService_StreamAggregatedResourcesClient, names []string) error {
	st := c.typeState(resourcev3.EndpointType)
	st.markPending()
	return stream.Send(&discoverygrpc.DiscoveryRequest{
		TypeUrl:       resourcev3.EndpointType,
		ResourceNames: names,
		Node:          c.node(),
	})
}

func (c *Client) pendingEDSSubscription() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.clusterEDS) == 0 {
		return nil
	}
	names := make([]string, 0, len(c.clusterEDS))
	for name := range c.clusterEDS {
		names = append(names, name)
	}
	c.clusterEDS = make(map[string]struct{})
	return names
}

// apply decodes and projects a single DiscoveryResponse's resources,
// returning a non-nil error (never fatal to the stream) iff the
// response should be NACKed.
func (c *Client) apply(resp *discoverygrpc.DiscoveryResponse) error {
	switch resp.GetTypeUrl() {
	case resourcev3.ClusterType:
		return c.applyClusters(resp)
	case resourcev3.EndpointType:
		return c.applyEndpoints(resp)
	case FilterChainTypeURL:
		return c.applyFilterChain(resp)
	default:
		return fmt.Errorf("unexpected type URL %q", resp.GetTypeUrl())
	}
}

func (c *Client) applyClusters(resp *discoverygrpc.DiscoveryResponse) error {
	var edsNames []string
	for _, any := range resp.GetResources() {
		var cl clusterv3.Cluster
		if err := proto.Unmarshal(any.GetValue(), &cl); err != nil {
			return fmt.Errorf("decode cluster: %w", err)
		}
		name, needsEDS := clusterNamesFromResource(&cl)
		if needsEDS {
			edsNames = append(edsNames, name)
			continue
		}
		eps, err := endpointsFromAssignment(cl.GetLoadAssignment())
		if err != nil {
			return err
		}
		c.opts.Clusters.Upsert(clusterKeyOf(name), eps)
	}

	if len(edsNames) > 0 {
		c.mu.Lock()
		for _, n := range edsNames {
			c.clusterEDS[n] = struct{}{}
		}
		c.mu.Unlock()
	}
	return nil
}

func (c *Client) applyEndpoints(resp *discoverygrpc.DiscoveryResponse) error {
	for _, any := range resp.GetResources() {
		var assignment endpointv3.ClusterLoadAssignment
		if err := proto.Unmarshal(any.GetValue(), &assignment); err != nil {
			return fmt.Errorf("decode cluster load assignment: %w", err)
		}
		eps, err := endpointsFromAssignment(&assignment)
		if err != nil {
			return err
		}
		c.opts.Clusters.Upsert(clusterKeyOf(assignment.GetClusterName()), eps)
	}
	return nil
}

func (c *Client) applyFilterChain(resp *discoverygrpc.DiscoveryResponse) error {
	resources := resp.GetResources()
	if len(resources) == 0 {
		return nil
	}
	// Only one filter chain resource is meaningful for a single
	// proxy instance; the last one wins if more than one is sent.
	raw := resources[len(resources)-1].GetValue()

	c.mu.Lock()
	c.chainVer++
	version := c.chainVer
	c.mu.Unlock()

	chain, err := buildChain(version, raw, c.opts.Caps)
	if err != nil {
		return err
	}
	c.opts.Chain.Store(chain)
	return nil
}
