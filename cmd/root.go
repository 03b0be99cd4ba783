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

// Package cmd implements the CLI interface for the quilkin proxy.
// It provides the run and validate sub-commands.
package cmd

import (
	"flag"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/quilkin-proxy/quilkin/internal/config"
)

var (
	cfgFile string
	zapOpts *zap.Options
	rootCmd = &cobra.Command{
		Use:   "quilkin",
		Short: "A non-transparent UDP proxy built for game servers",
		Long: `quilkin forwards UDP datagrams between game clients and backend game
servers, filtering and routing each datagram through a configurable
chain, with endpoints sourced either from a static configuration file
or streamed dynamically from an xDS management server.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ctrl.SetLogger(zap.New(zap.UseFlagOptions(zapOpts)))
		},
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"configuration file (default: $QUILKIN_CONFIG, then ./quilkin.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	zapfs := flag.NewFlagSet("zap", flag.ExitOnError)
	zapOpts = &zap.Options{Development: true}
	zapOpts.BindFlags(zapfs)
	rootCmd.PersistentFlags().AddGoFlagSet(zapfs)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}

func initConfig() {
	if cfgFile == "" {
		cfgFile = config.ResolvePath()
	}
}
