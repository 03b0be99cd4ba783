package endpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "ipv4", input: "127.0.0.1:7000"},
		{name: "ipv6", input: "[::1]:7000"},
		{name: "missing port", input: "127.0.0.1", wantErr: true},
		{name: "garbage", input: "not-an-address", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := NewAddress(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, addr.String())
		})
	}
}

func TestAddressEqual(t *testing.T) {
	a, err := NewAddress("127.0.0.1:7000")
	require.NoError(t, err)
	b, err := NewAddress("127.0.0.1:7000")
	require.NoError(t, err)
	c, err := NewAddress("127.0.0.1:7001")
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestMetadataHasToken(t *testing.T) {
	md := Metadata{Tokens: [][]byte{[]byte("1x7ijy6"), []byte("nkuy70x")}}

	assert.True(t, md.HasToken([]byte("1x7ijy6")))
	assert.True(t, md.HasToken([]byte("nkuy70x")))
	assert.False(t, md.HasToken([]byte("missing")))
	assert.False(t, Metadata{}.HasToken([]byte("anything")))
}

func TestEndpointKey(t *testing.T) {
	addr, err := NewAddress("10.0.0.2:9000")
	require.NoError(t, err)
	ep := Endpoint{Address: addr}

	assert.Equal(t, addr.String(), ep.Key())
}
