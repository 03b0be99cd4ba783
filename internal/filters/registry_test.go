package filters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndBuild(t *testing.T) {
	Register("test.echo", func(rawConfig []byte, caps Capabilities) (Filter, error) {
		return &passThrough{name: "test.echo", order: &[]string{}}, nil
	})

	assert.True(t, Known("test.echo"))
	f, err := Build("test.echo", nil, Capabilities{})
	require.NoError(t, err)
	assert.Equal(t, "test.echo", f.Name())
}

func TestBuildUnknownFilter(t *testing.T) {
	_, err := Build("test.does-not-exist", nil, Capabilities{})
	require.Error(t, err)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Register("test.dup", func(rawConfig []byte, caps Capabilities) (Filter, error) { return nil, nil })

	assert.Panics(t, func() {
		Register("test.dup", func(rawConfig []byte, caps Capabilities) (Filter, error) { return nil, nil })
	})
}
