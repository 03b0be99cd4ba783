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

import "github.com/prometheus/client_golang/prometheus"

// ResponsesAcked and ResponsesNacked count accepted and rejected
// discovery responses, labeled by type URL.
var (
	ResponsesAcked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quilkin",
			Subsystem: "xds",
			Name:      "responses_acked_total",
			Help:      "Discovery responses accepted and ACKed, by type URL.",
		},
		[]string{"type_url"},
	)
	ResponsesNacked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quilkin",
			Subsystem: "xds",
			Name:      "responses_nacked_total",
			Help:      "Discovery responses rejected and NACKed, by type URL.",
		},
		[]string{"type_url"},
	)
)

func init() {
	prometheus.MustRegister(ResponsesAcked, ResponsesNacked)
}
