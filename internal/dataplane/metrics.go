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

package dataplane

import "github.com/prometheus/client_golang/prometheus"

var (
	// DatagramsReceivedTotal counts every datagram read off the
	// listening socket, before any filter runs.
	DatagramsReceivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quilkin",
		Subsystem: "dataplane",
		Name:      "datagrams_received_total",
		Help:      "Datagrams received on the downstream listening socket.",
	})

	// DatagramsForwardedTotal counts datagrams successfully handed to
	// a session's upstream socket.
	DatagramsForwardedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quilkin",
		Subsystem: "dataplane",
		Name:      "datagrams_forwarded_total",
		Help:      "Datagrams forwarded to an endpoint.",
	})

	// DatagramsNoEndpointsTotal counts datagrams dropped because the
	// filter chain left an empty destination list and the default
	// cluster had no endpoints either.
	DatagramsNoEndpointsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quilkin",
		Subsystem: "dataplane",
		Name:      "datagrams_no_endpoints_total",
		Help:      "Datagrams dropped for lack of any destination endpoint.",
	})
)

func init() {
	prometheus.MustRegister(DatagramsReceivedTotal, DatagramsForwardedTotal, DatagramsNoEndpointsTotal)
}
