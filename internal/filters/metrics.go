package filters

import "github.com/prometheus/client_golang/prometheus"

// DatagramsDropped counts datagrams dropped by the filter chain,
// labeled by the filter that dropped them and the error kind.
var DatagramsDropped = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "quilkin",
		Subsystem: "filters",
		Name:      "datagrams_dropped_total",
		Help:      "Datagrams dropped by a filter, by filter name and error kind.",
	},
	[]string{"filter", "kind"},
)

func init() {
	prometheus.MustRegister(DatagramsDropped)
}
