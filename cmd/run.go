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

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/quilkin-proxy/quilkin/internal/config"
	"github.com/quilkin-proxy/quilkin/internal/supervisor"
)

// runCmd starts the proxy and blocks until a shutdown signal arrives
// or a fatal error occurs.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the proxy",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	log := ctrl.Log.WithName("quilkin")

	cfg, err := config.Load(cfgFile)
	if err != nil {
		log.Error(err, "configuration error", "file", cfgFile)
		os.Exit(1)
	}

	sup, err := supervisor.New(cfg, log)
	if err != nil {
		log.Error(err, "failed to build supervisor")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	log.Info("starting proxy", "proxy_id", cfg.Proxy.ID, "port", cfg.Proxy.Port, "admin", cfg.Admin.Address)

	if err := sup.Run(ctx); err != nil {
		log.Error(err, "shutting down with error")
		os.Exit(2)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "shut down cleanly")
	return nil
}
