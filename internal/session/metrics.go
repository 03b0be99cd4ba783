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

package session

import "github.com/prometheus/client_golang/prometheus"

var (
	// ActiveSessions tracks the current size of the session table.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "quilkin",
		Subsystem: "sessions",
		Name:      "active",
		Help:      "Number of sessions currently held open.",
	})

	// SessionLimitExceeded counts datagrams dropped because the
	// session table was at capacity and no existing session matched.
	SessionLimitExceeded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quilkin",
		Subsystem: "sessions",
		Name:      "limit_exceeded_total",
		Help:      "Datagrams dropped because the session table was at its maximum size.",
	})

	// CreatedTotal counts sessions established since startup.
	CreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quilkin",
		Subsystem: "sessions",
		Name:      "created_total",
		Help:      "Sessions created since startup.",
	})

	// ExpiredTotal counts sessions reaped for having been idle past the
	// TTL.
	ExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quilkin",
		Subsystem: "sessions",
		Name:      "expired_total",
		Help:      "Sessions reaped for exceeding the idle TTL.",
	})
)

func init() {
	prometheus.MustRegister(ActiveSessions, SessionLimitExceeded, CreatedTotal, ExpiredTotal)
}
