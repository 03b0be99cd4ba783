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

// Package supervisor wires together the ClusterMap, FilterChain
// holder, SessionMap, Dataplane, admin collaborator and (when
// configured) the xDS DiscoveryClient into a single process, and owns
// the shutdown signal broadcast to all of them.
package supervisor

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/go-logr/logr"

	"github.com/quilkin-proxy/quilkin/internal/admin"
	"github.com/quilkin-proxy/quilkin/internal/cluster"
	"github.com/quilkin-proxy/quilkin/internal/config"
	"github.com/quilkin-proxy/quilkin/internal/dataplane"
	"github.com/quilkin-proxy/quilkin/internal/filters"
	"github.com/quilkin-proxy/quilkin/internal/session"
	"github.com/quilkin-proxy/quilkin/internal/xds"
)

// Supervisor owns every long-lived collaborator's lifecycle.
type Supervisor struct {
	cfg *config.Config
	log logr.Logger

	clusters *cluster.Map
	chain    *dataplane.ChainHolder
	sessions *session.Map
	plane    *dataplane.Dataplane
	adminSrv *admin.Server
	discover *xds.Client
}

// New builds every collaborator from cfg but does not start any of
// them.
func New(cfg *config.Config, log logr.Logger) (*Supervisor, error) {
	s := &Supervisor{
		cfg:      cfg,
		log:      log,
		clusters: cluster.New(),
	}

	caps := filters.Capabilities{Clusters: s.clusters}

	var initialChain *filters.Chain
	switch {
	case cfg.Static != nil:
		eps, err := cfg.Static.ResolveEndpoints()
		if err != nil {
			return nil, err
		}
		s.clusters.InsertDefault(eps)

		chain, err := cfg.Static.BuildChain(caps)
		if err != nil {
			return nil, err
		}
		initialChain = chain

	case cfg.Dynamic != nil:
		initialChain = filters.NewChain(0, nil)

	default:
		return nil, fmt.Errorf("supervisor: config has neither static nor dynamic section")
	}

	s.chain = dataplane.NewChainHolder(initialChain)

	// Dataplane and session.Map each hold a reference to the other
	// (Dataplane is the DownstreamSender sessions reply through), so
	// construction happens in two steps: build the Dataplane first,
	// then the session.Map pointing back at it, then bind them.
	s.plane = dataplane.New(dataplane.Options{
		Clusters: s.clusters,
		Chain:    s.chain,
		Log:      log,
	})
	s.sessions = session.New(session.Options{
		Downstream: s.plane,
		Chains:     s.chain,
		Log:        log,
	})
	s.plane.SetSessions(s.sessions)

	if cfg.Dynamic != nil {
		servers := make([]string, 0, len(cfg.Dynamic.ManagementServers))
		for _, m := range cfg.Dynamic.ManagementServers {
			servers = append(servers, m.Address)
		}

		client, err := xds.New(xds.Options{
			ManagementServers: servers,
			NodeID:            cfg.Proxy.ID,
			Clusters:          s.clusters,
			Chain:             s.chain,
			Caps:              caps,
			Log:               log,
		})
		if err != nil {
			return nil, err
		}
		s.discover = client
	}

	s.adminSrv = admin.New(admin.Options{
		Address:  cfg.Admin.Address,
		Clusters: s.clusters,
		Snapshot: s.snapshot,
		Log:      log,
	})

	return s, nil
}

func (s *Supervisor) snapshot() admin.ConfigSnapshot {
	keys := make([]string, 0)
	for k := range s.clusters.All() {
		keys = append(keys, string(k))
	}

	mode := "static"
	if s.cfg.Dynamic != nil {
		mode = "dynamic"
	}

	chain := s.chain.Load()
	return admin.ConfigSnapshot{
		ProxyID:     s.cfg.Proxy.ID,
		ProxyPort:   s.cfg.Proxy.Port,
		Mode:        mode,
		ChainLen:    chain.Len(),
		ChainVer:    chain.Version(),
		ClusterKeys: keys,
	}
}

// Run starts every collaborator and blocks until ctx is cancelled,
// then drains sessions and shuts down the admin server. It returns a
// fatal discovery error or the error the dataplane exited with
// (callers map that to a runtime exit code); a clean shutdown returns
// nil.
func (s *Supervisor) Run(ctx context.Context) error {
	s.adminSrv.Start()

	listenAddr := netip.AddrPortFrom(netip.IPv6Unspecified(), s.cfg.Proxy.Port)

	planeErrCh := make(chan error, 1)
	go func() { planeErrCh <- s.plane.ListenAndServe(listenAddr) }()

	var discoverErrCh chan error
	if s.discover != nil {
		discoverErrCh = make(chan error, 1)
		go func() { discoverErrCh <- s.discover.Run(ctx) }()
	}

	var fatalErr error
	select {
	case <-ctx.Done():
	case err := <-planeErrCh:
		fatalErr = fmt.Errorf("dataplane exited: %w", err)
	case err := <-discoverErrCh:
		if err != nil {
			fatalErr = err
		}
	}

	// ctx is already cancelled at this point (that's what unblocked the
	// select above), so draining on it directly would give session.Map
	// zero grace period; bound the drain on a fresh context instead.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), session.DefaultShutdownGrace)
	defer cancel()

	s.plane.Shutdown(shutdownCtx)
	_ = s.adminSrv.Shutdown(shutdownCtx)

	return fatalErr
}
