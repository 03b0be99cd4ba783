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
	"os"

	"github.com/spf13/cobra"

	"github.com/quilkin-proxy/quilkin/internal/config"
)

// validateCmd loads and validates the configuration file without
// starting the proxy: exit 0 on success, 1 on a configuration error.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration file, then exit",
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	if _, err := config.Load(cfgFile); err != nil {
		os.Exit(1)
	}
	return nil
}
