package firewall

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/quilkin-proxy/quilkin/internal/endpoint"
	"github.com/quilkin-proxy/quilkin/internal/filters"
)

func mustAddr(t *testing.T, s string) endpoint.Address {
	t.Helper()
	a, err := endpoint.NewAddress(s)
	require.NoError(t, err)
	return a
}

func TestFirewallDefaultDeny(t *testing.T) {
	yamlCfg := []byte(`
on_read:
  - action: Allow
    sources: ["192.168.75.0/24"]
    ports: ["10-100"]
`)
	f, err := filters.Build(Name, yamlCfg, filters.Capabilities{})
	require.NoError(t, err)

	// Allowed: in CIDR, in port range.
	ctx := &filters.ReadContext{Source: mustAddr(t, "192.168.75.20:80")}
	assert.NoError(t, f.Read(ctx))

	// Denied: in CIDR, out of port range.
	ctx = &filters.ReadContext{Source: mustAddr(t, "192.168.75.20:2000")}
	err = f.Read(ctx)
	require.Error(t, err)
	kind, ok := filters.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, filters.FirewallDenied, kind)

	// Denied: out of CIDR entirely.
	ctx = &filters.ReadContext{Source: mustAddr(t, "192.168.77.20:80")}
	err = f.Read(ctx)
	require.Error(t, err)
}

func TestFirewallExplicitDeny(t *testing.T) {
	f, err := New(Config{
		OnWrite: []Rule{{
			Action:  Deny,
			Sources: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")},
			Ports:   []PortRange{{Min: 1, Max: 65535}},
		}},
	})
	require.NoError(t, err)

	ctx := &filters.WriteContext{Source: mustAddr(t, "10.1.2.3:5000")}
	err = f.Write(ctx)
	require.Error(t, err)
}

func TestFirewallNoRulesIsDefaultDeny(t *testing.T) {
	f, err := New(Config{})
	require.NoError(t, err)

	err = f.Read(&filters.ReadContext{Source: mustAddr(t, "1.2.3.4:80")})
	require.Error(t, err)
}

func TestPortRangeUnmarshalScalarAndRange(t *testing.T) {
	var pr PortRange
	require.NoError(t, yaml.Unmarshal([]byte(`"80"`), &pr))
	assert.True(t, pr.Contains(80))
	assert.False(t, pr.Contains(81))

	require.NoError(t, yaml.Unmarshal([]byte(`"10-100"`), &pr))
	assert.True(t, pr.Contains(10))
	assert.True(t, pr.Contains(100))
	assert.False(t, pr.Contains(101))
}
