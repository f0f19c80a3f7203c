package csp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ChannelForCreatesThenReuses(t *testing.T) {
	r := NewRegistry()

	a, err := ChannelFor[int](r, "nums")
	require.NoError(t, err)
	b, err := ChannelFor[int](r, "nums")
	require.NoError(t, err)
	assert.Same(t, a.core, b.core)

	wf := a.WriteAsync(5)
	v, err := b.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	require.NoError(t, wf.Await(context.Background()))
}

func TestRegistry_ChannelForRejectsTypeMismatch(t *testing.T) {
	r := NewRegistry()
	_, err := ChannelFor[int](r, "mixed")
	require.NoError(t, err)

	_, err = ChannelFor[string](r, "mixed")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Contains(t, err.Error(), "mixed")
}

func TestRegistry_NamesLenRemove(t *testing.T) {
	r := NewRegistry()
	_, err := ChannelFor[int](r, "b")
	require.NoError(t, err)
	_, err = ChannelFor[int](r, "a")
	require.NoError(t, err)

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"a", "b"}, r.Names())

	r.Remove("a")
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []string{"b"}, r.Names())
}

func TestRegistry_RetireAllRetiresEveryChannel(t *testing.T) {
	r := NewRegistry()
	a, err := ChannelFor[int](r, "x")
	require.NoError(t, err)
	b, err := ChannelFor[int](r, "y")
	require.NoError(t, err)

	r.RetireAll()

	assert.True(t, a.IsRetired())
	assert.True(t, b.IsRetired())
}
