package filters

// Chain is an ordered, immutable composition of Filters. It is
// evaluated head-to-tail on Read and tail-to-head on Write. A Chain
// is never mutated in place: config changes produce a brand new Chain
// that the dataplane swaps in atomically.
type Chain struct {
	version int
	filters []Filter
}

// NewChain builds a Chain from an ordered list of filters and a
// monotonically increasing version number, used only for diagnostics
// (the admin /config dump).
func NewChain(version int, fs []Filter) *Chain {
	cp := make([]Filter, len(fs))
	copy(cp, fs)
	return &Chain{version: version, filters: cp}
}

// Version returns the chain's version counter.
func (c *Chain) Version() int { return c.version }

// Len reports how many filters make up the chain.
func (c *Chain) Len() int { return len(c.filters) }

// Read evaluates every filter in configured order. A Dropped,
// RateLimitExceeded or FirewallDenied error stops evaluation and is
// accounted for; any other filter error is likewise fatal only for
// this datagram. The caller is responsible for treating any non-nil
// error as "drop this datagram, forward nothing".
func (c *Chain) Read(ctx *ReadContext) error {
	for _, f := range c.filters {
		if err := f.Read(ctx); err != nil {
			account(f.Name(), err)
			return err
		}
	}
	return nil
}

// Write evaluates every filter in reverse configured order.
func (c *Chain) Write(ctx *WriteContext) error {
	for i := len(c.filters) - 1; i >= 0; i-- {
		f := c.filters[i]
		if err := f.Write(ctx); err != nil {
			account(f.Name(), err)
			return err
		}
	}
	return nil
}

func account(filterName string, err error) {
	kind, ok := KindOf(err)
	name := "Custom"
	if ok {
		name = kind.String()
	}
	DatagramsDropped.WithLabelValues(filterName, name).Inc()
}
