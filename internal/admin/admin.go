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

// Package admin runs the proxy's external-collaborator HTTP endpoint:
// liveness/readiness probes, a Prometheus scrape handler, a redacted
// config dump and pprof, on its own http.Server isolated from the
// dataplane worker pool.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/pprof"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quilkin-proxy/quilkin/internal/cluster"
)

// ConfigSnapshot is the JSON shape returned by GET /config. Callers
// populate it with whatever fields are safe to expose; it deliberately
// carries no secrets (routing tokens are never included).
type ConfigSnapshot struct {
	ProxyID     string   `json:"proxy_id"`
	ProxyPort   uint16   `json:"proxy_port"`
	Mode        string   `json:"mode"`
	ChainLen    int      `json:"filter_chain_length"`
	ChainVer    int      `json:"filter_chain_version"`
	ClusterKeys []string `json:"cluster_keys"`
}

// Server is the admin HTTP collaborator.
type Server struct {
	httpServer *http.Server
	log        logr.Logger
}

// Options configures a Server.
type Options struct {
	Address  string
	Clusters *cluster.Map
	Snapshot func() ConfigSnapshot
	Log      logr.Logger
}

// New builds a Server. It does not start listening until Start is
// called.
func New(opts Options) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/live", requireGET(okHandler))
	mux.HandleFunc("/livez", requireGET(okHandler))
	mux.HandleFunc("/ready", requireGET(readyHandler(opts.Clusters)))
	mux.HandleFunc("/readyz", requireGET(readyHandler(opts.Clusters)))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/config", requireGET(configHandler(opts.Snapshot)))

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return &Server{
		httpServer: &http.Server{Addr: opts.Address, Handler: mux},
		log:        opts.Log,
	}
}

// requireGET rejects anything but GET with 404, matching the rest of
// this deliberately narrow surface ("anything else -> 404").
func requireGET(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		next(w, r)
	}
}

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func readyHandler(clusters *cluster.Map) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if clusters != nil && clusters.HasEndpoints() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}
}

func configHandler(snapshot func() ConfigSnapshot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if snapshot == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snapshot()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// Start begins serving on its own goroutine; a listen error (other
// than a clean shutdown) is logged, not returned, matching spec.md
// §7's "admin server logs and returns 500 on handler failure; it does
// not abort" policy extended to the listener itself.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error(err, "admin: server exited")
		}
	}()
}

// Shutdown gracefully stops the server, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
