package filters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// passThrough is a minimal Filter used to test chain ordering.
type passThrough struct {
	name  string
	order *[]string
}

func (p *passThrough) Name() string { return p.name }
func (p *passThrough) Read(ctx *ReadContext) error {
	*p.order = append(*p.order, "read:"+p.name)
	return nil
}
func (p *passThrough) Write(ctx *WriteContext) error {
	*p.order = append(*p.order, "write:"+p.name)
	return nil
}

func TestChainReadOrderIsHeadToTail(t *testing.T) {
	var order []string
	chain := NewChain(1, []Filter{
		&passThrough{name: "a", order: &order},
		&passThrough{name: "b", order: &order},
		&passThrough{name: "c", order: &order},
	})

	err := chain.Read(&ReadContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"read:a", "read:b", "read:c"}, order)
}

func TestChainWriteOrderIsTailToHead(t *testing.T) {
	var order []string
	chain := NewChain(1, []Filter{
		&passThrough{name: "a", order: &order},
		&passThrough{name: "b", order: &order},
		&passThrough{name: "c", order: &order},
	})

	err := chain.Write(&WriteContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"write:c", "write:b", "write:a"}, order)
}

// dropping always returns a Dropped error.
type dropping struct{ name string }

func (d *dropping) Name() string                    { return d.name }
func (d *dropping) Read(ctx *ReadContext) error      { return NewError(d.name, Dropped, "") }
func (d *dropping) Write(ctx *WriteContext) error    { return NewError(d.name, Dropped, "") }

func TestChainStopsAtFirstError(t *testing.T) {
	var order []string
	chain := NewChain(1, []Filter{
		&passThrough{name: "a", order: &order},
		&dropping{name: "b"},
		&passThrough{name: "c", order: &order},
	})

	err := chain.Read(&ReadContext{})
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, Dropped, kind)
	assert.Equal(t, []string{"read:a"}, order, "filter c must not run after b drops")
}

func TestEmptyChainIsIdempotent(t *testing.T) {
	chain := NewChain(0, nil)
	payload := []byte("hello")

	rctx := &ReadContext{Payload: payload}
	require.NoError(t, chain.Read(rctx))
	assert.Equal(t, []byte("hello"), rctx.Payload)

	wctx := &WriteContext{Payload: payload}
	require.NoError(t, chain.Write(wctx))
	assert.Equal(t, []byte("hello"), wctx.Payload)
}

func TestChainVersionAndLen(t *testing.T) {
	chain := NewChain(42, []Filter{&passThrough{name: "a", order: &[]string{}}})
	assert.Equal(t, 42, chain.Version())
	assert.Equal(t, 1, chain.Len())
}
