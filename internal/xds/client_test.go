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
	"context"
	"net"
	"testing"
	"time"

	clusterv3 "github.com/envoyproxy/go-control-plane/envoy/config/cluster/v3"
	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	endpointv3 "github.com/envoyproxy/go-control-plane/envoy/config/endpoint/v3"
	discoverygrpc "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"
	resourcev3 "github.com/envoyproxy/go-control-plane/pkg/resource/v3"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/quilkin-proxy/quilkin/internal/cluster"
	"github.com/quilkin-proxy/quilkin/internal/dataplane"
	"github.com/quilkin-proxy/quilkin/internal/filters"
)

// fakeADS is a minimal in-memory Aggregated Discovery Service used to
// drive Client through connect, ACK and NACK without a real network.
type fakeADS struct {
	discoverygrpc.UnimplementedAggregatedDiscoveryServiceServer

	requests chan *discoverygrpc.DiscoveryRequest
	respond  func(req *discoverygrpc.DiscoveryRequest) *discoverygrpc.DiscoveryResponse
}

func (f *fakeADS) StreamAggregatedResources(stream discoverygrpc.AggregatedDiscoveryService_StreamAggregatedResourcesServer) error {
	for {
		req, err := stream.Recv()
		if err != nil {
			return nil
		}
		if f.requests != nil {
			select {
			case f.requests <- req:
			default:
			}
		}
		if resp := f.respond(req); resp != nil {
			if err := stream.Send(resp); err != nil {
				return err
			}
		}
	}
}

func startFakeADS(t *testing.T, srv *fakeADS) (dialTarget string, dialer func(ctx context.Context, target string) (*grpc.ClientConn, error)) {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	gs := grpc.NewServer()
	discoverygrpc.RegisterAggregatedDiscoveryServiceServer(gs, srv)

	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	return "bufnet", func(ctx context.Context, target string) (*grpc.ClientConn, error) {
		return grpc.NewClient("passthrough:///bufnet",
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.Dial() }),
			grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
}

func clusterResource(t *testing.T, name, addr string, port uint32) *anypb.Any {
	t.Helper()

	c := &clusterv3.Cluster{
		Name: name,
		LoadAssignment: &endpointv3.ClusterLoadAssignment{
			ClusterName: name,
			Endpoints: []*endpointv3.LocalityLbEndpoints{{
				LbEndpoints: []*endpointv3.LbEndpoint{{
					HostIdentifier: &endpointv3.LbEndpoint_Endpoint{
						Endpoint: &endpointv3.Endpoint{
							Address: &corev3.Address{
								Address: &corev3.Address_SocketAddress{
									SocketAddress: &corev3.SocketAddress{
										Address:       addr,
										PortSpecifier: &corev3.SocketAddress_PortValue{PortValue: port},
									},
								},
							},
						},
					},
				}},
			}},
		},
	}
	raw, err := proto.Marshal(c)
	require.NoError(t, err)
	return &anypb.Any{TypeUrl: resourcev3.ClusterType, Value: raw}
}

func endpointAssignmentResource(t *testing.T, clusterName, addr string, port uint32) *anypb.Any {
	t.Helper()

	assignment := &endpointv3.ClusterLoadAssignment{
		ClusterName: clusterName,
		Endpoints: []*endpointv3.LocalityLbEndpoints{{
			LbEndpoints: []*endpointv3.LbEndpoint{{
				HostIdentifier: &endpointv3.LbEndpoint_Endpoint{
					Endpoint: &endpointv3.Endpoint{
						Address: &corev3.Address{
							Address: &corev3.Address_SocketAddress{
								SocketAddress: &corev3.SocketAddress{
									Address:       addr,
									PortSpecifier: &corev3.SocketAddress_PortValue{PortValue: port},
								},
							},
						},
					},
				},
			}},
		}},
	}
	raw, err := proto.Marshal(assignment)
	require.NoError(t, err)
	return &anypb.Any{TypeUrl: resourcev3.EndpointType, Value: raw}
}

func TestClientRejectsEmptyManagementServers(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)

	var xerr *Error
	require.ErrorAs(t, err, &xerr)
	require.Equal(t, Permanent, xerr.Severity)
}

func TestClientRejectsInvalidManagementServerURL(t *testing.T) {
	_, err := New(Options{ManagementServers: []string{"\x7f not a url"}})
	require.Error(t, err)

	var xerr *Error
	require.ErrorAs(t, err, &xerr)
	require.Equal(t, Permanent, xerr.Severity)
}

func TestClientAppliesClusterResourceAndACKs(t *testing.T) {
	reqs := make(chan *discoverygrpc.DiscoveryRequest, 8)
	sentInitialResponse := false

	srv := &fakeADS{requests: reqs}
	srv.respond = func(req *discoverygrpc.DiscoveryRequest) *discoverygrpc.DiscoveryResponse {
		if req.TypeUrl == resourcev3.ClusterType && !sentInitialResponse {
			sentInitialResponse = true
			return &discoverygrpc.DiscoveryResponse{
				TypeUrl:     resourcev3.ClusterType,
				VersionInfo: "1",
				Nonce:       "nonce-1",
				Resources:   []*anypb.Any{clusterResource(t, "default", "127.0.0.1", 5000)},
			}
		}
		return nil
	}

	_, dialer := startFakeADS(t, srv)

	clusters := cluster.New()
	clnt, err := New(Options{
		ManagementServers: []string{"bufnet"},
		Clusters:          clusters,
		Chain:             dataplane.NewChainHolder(nil),
		Caps:              filters.Capabilities{Clusters: clusters},
		Dialer:            dialer,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- clnt.Run(ctx) }()

	require.Eventually(t, func() bool {
		return clusters.HasEndpoints()
	}, 2*time.Second, 10*time.Millisecond)

	eps := clusters.Endpoints(cluster.Default)
	require.Len(t, eps, 1)
	require.Equal(t, "127.0.0.1:5000", eps[0].Address.String())

	// Expect the client to have ACKed with the version it received.
	var sawACK bool
	ackDeadline := time.After(2 * time.Second)
	for !sawACK {
		select {
		case req := <-reqs:
			if req.TypeUrl == resourcev3.ClusterType && req.VersionInfo == "1" {
				sawACK = true
			}
		case <-ackDeadline:
			t.Fatal("timed out waiting for ACK")
		}
	}
	require.True(t, sawACK, "expected client to ACK the cluster version it applied")

	cancel()
	require.NoError(t, <-done)
}

func TestClientNACKsMalformedClusterResource(t *testing.T) {
	reqs := make(chan *discoverygrpc.DiscoveryRequest, 8)
	sent := false

	srv := &fakeADS{requests: reqs}
	srv.respond = func(req *discoverygrpc.DiscoveryRequest) *discoverygrpc.DiscoveryResponse {
		if req.TypeUrl == resourcev3.ClusterType && !sent {
			sent = true
			return &discoverygrpc.DiscoveryResponse{
				TypeUrl:     resourcev3.ClusterType,
				VersionInfo: "1",
				Nonce:       "nonce-1",
				Resources:   []*anypb.Any{{TypeUrl: resourcev3.ClusterType, Value: []byte("not a valid cluster")}},
			}
		}
		return nil
	}

	_, dialer := startFakeADS(t, srv)

	clusters := cluster.New()
	clnt, err := New(Options{
		ManagementServers: []string{"bufnet"},
		Clusters:          clusters,
		Chain:             dataplane.NewChainHolder(nil),
		Caps:              filters.Capabilities{Clusters: clusters},
		Dialer:            dialer,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- clnt.Run(ctx) }()

	var sawNACK bool
	deadline := time.After(2 * time.Second)
	for !sawNACK {
		select {
		case req := <-reqs:
			if req.TypeUrl == resourcev3.ClusterType && req.ErrorDetail != nil {
				sawNACK = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for NACK")
		}
	}
	require.False(t, clusters.HasEndpoints())

	cancel()
	require.NoError(t, <-done)
}

// E5: a malformed cluster resource is NACKed with a non-empty
// error_detail, the cluster map retains its prior (empty) state, and
// the NACK counter exposed on /metrics is incremented.
func TestClientNACKIncrementsMetricsCounter(t *testing.T) {
	before := testutil.ToFloat64(ResponsesNacked.WithLabelValues(resourcev3.ClusterType))

	reqs := make(chan *discoverygrpc.DiscoveryRequest, 8)
	sent := false
	srv := &fakeADS{requests: reqs}
	srv.respond = func(req *discoverygrpc.DiscoveryRequest) *discoverygrpc.DiscoveryResponse {
		if req.TypeUrl == resourcev3.ClusterType && !sent {
			sent = true
			return &discoverygrpc.DiscoveryResponse{
				TypeUrl:     resourcev3.ClusterType,
				VersionInfo: "1",
				Nonce:       "nonce-1",
				Resources:   []*anypb.Any{{TypeUrl: resourcev3.ClusterType, Value: []byte("garbage")}},
			}
		}
		return nil
	}

	_, dialer := startFakeADS(t, srv)

	clusters := cluster.New()
	clnt, err := New(Options{
		ManagementServers: []string{"bufnet"},
		Clusters:          clusters,
		Chain:             dataplane.NewChainHolder(nil),
		Caps:              filters.Capabilities{Clusters: clusters},
		Dialer:            dialer,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- clnt.Run(ctx) }()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(ResponsesNacked.WithLabelValues(resourcev3.ClusterType)) > before
	}, 2*time.Second, 10*time.Millisecond, "NACK counter was not incremented")

	require.False(t, clusters.HasEndpoints())

	cancel()
	require.NoError(t, <-done)
}

// E4: two management servers are configured; the first refuses every
// dial attempt, so the client fails over to the second, which serves
// a CDS cluster needing EDS plus the follow-up EDS response, proving
// both server fail-over and the CDS -> EDS subscription hand-off.
func TestClientFailsOverAndAppliesEDSAfterCDS(t *testing.T) {
	goodSrv := &fakeADS{}
	edsSent := false
	goodSrv.respond = func(req *discoverygrpc.DiscoveryRequest) *discoverygrpc.DiscoveryResponse {
		switch req.TypeUrl {
		case resourcev3.ClusterType:
			c := &clusterv3.Cluster{
				Name: "dynamic-cluster",
				ClusterDiscoveryType: &clusterv3.Cluster_Type{Type: clusterv3.Cluster_EDS},
			}
			raw, err := proto.Marshal(c)
			require.NoError(t, err)
			return &discoverygrpc.DiscoveryResponse{
				TypeUrl:     resourcev3.ClusterType,
				VersionInfo: "1",
				Nonce:       "cds-nonce-1",
				Resources:   []*anypb.Any{{TypeUrl: resourcev3.ClusterType, Value: raw}},
			}
		case resourcev3.EndpointType:
			if edsSent {
				return nil
			}
			edsSent = true
			return &discoverygrpc.DiscoveryResponse{
				TypeUrl:     resourcev3.EndpointType,
				VersionInfo: "1",
				Nonce:       "eds-nonce-1",
				Resources:   []*anypb.Any{endpointAssignmentResource(t, "dynamic-cluster", "10.0.0.9", 7777)},
			}
		}
		return nil
	}

	_, goodDialer := startFakeADS(t, goodSrv)

	clusters := cluster.New()
	clnt, err := New(Options{
		ManagementServers: []string{"bad-server-unreachable", "bufnet"},
		Clusters:          clusters,
		Chain:             dataplane.NewChainHolder(nil),
		Caps:              filters.Capabilities{Clusters: clusters},
		Dialer: func(ctx context.Context, target string) (*grpc.ClientConn, error) {
			if target == "bad-server-unreachable" {
				return nil, context.DeadlineExceeded
			}
			return goodDialer(ctx, target)
		},
		Backoff: BackoffConfig{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 2, MaxElapsedTime: time.Second},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- clnt.Run(ctx) }()

	require.Eventually(t, func() bool {
		return clusters.HasEndpoints()
	}, 3*time.Second, 10*time.Millisecond, "client never failed over to the working management server")

	eps := clusters.Endpoints(cluster.Key("dynamic-cluster"))
	require.Len(t, eps, 1)
	require.Equal(t, "10.0.0.9:7777", eps[0].Address.String())

	cancel()
	require.NoError(t, <-done)
}
