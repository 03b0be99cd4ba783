package filters

import "github.com/quilkin-proxy/quilkin/internal/cluster"

// Capabilities bundles the shared, explicit handles a Factory may
// need to build a Filter: a view onto the cluster map for filters
// that resolve endpoints (TokenRouter, LoadBalancer), and anything
// else a future filter family requires. Filters receive exactly the
// capabilities they ask for at construction time; none may reach for
// ambient global state.
type Capabilities struct {
	Clusters *cluster.Map
}
