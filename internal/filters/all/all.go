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

// Package all imports every built-in filter family for its
// registration side effect, mirroring the teacher's own
// internal/dhcp/server.go plugin-import list: each filter package
// registers itself with internal/filters in an init() func, so
// importing this package once is enough to make every built-in filter
// name resolvable by internal/config and internal/xds.
package all

import (
	_ "github.com/quilkin-proxy/quilkin/internal/filters/capture"
	_ "github.com/quilkin-proxy/quilkin/internal/filters/compress"
	_ "github.com/quilkin-proxy/quilkin/internal/filters/concatenate"
	_ "github.com/quilkin-proxy/quilkin/internal/filters/debug"
	_ "github.com/quilkin-proxy/quilkin/internal/filters/firewall"
	_ "github.com/quilkin-proxy/quilkin/internal/filters/loadbalancer"
	_ "github.com/quilkin-proxy/quilkin/internal/filters/localratelimit"
	_ "github.com/quilkin-proxy/quilkin/internal/filters/tokenrouter"
)
