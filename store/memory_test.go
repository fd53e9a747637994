// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	s, err := NewMemoryStore(2)
	require.NoError(err)

	_, found, err := s.Get(ctx, "absent")
	require.NoError(err)
	require.False(found)

	require.NoError(s.Set(ctx, "a", "1"))
	require.NoError(s.Set(ctx, "b", "2"))

	v, found, err := s.Get(ctx, "a")
	require.NoError(err)
	require.True(found)
	require.Equal("1", v)

	// "b" is now least recently used
	require.NoError(s.Set(ctx, "c", "3"))
	_, found, _ = s.Get(ctx, "b")
	require.False(found)
	require.Equal(2, s.Len())

	require.NoError(s.Remove(ctx, "a"))
	require.NoError(s.Remove(ctx, "a"))
	_, found, _ = s.Get(ctx, "a")
	require.False(found)
}

func TestMemoryStoreDefaultSize(t *testing.T) {
	s, err := NewMemoryStore(0)
	require.NoError(t, err)
	require.Zero(t, s.Len())
}

func TestPrefixed(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	inner, err := NewMemoryStore(8)
	require.NoError(err)
	s := NewPrefixed("ns:", inner)

	require.NoError(s.Set(ctx, "k", "v"))

	v, found, err := inner.Get(ctx, "ns:k")
	require.NoError(err)
	require.True(found)
	require.Equal("v", v)

	v, found, err = s.Get(ctx, "k")
	require.NoError(err)
	require.True(found)
	require.Equal("v", v)

	require.NoError(s.Remove(ctx, "k"))
	_, found, _ = inner.Get(ctx, "ns:k")
	require.False(found)

	// memory stores have nothing to ping
	require.NoError(s.Ping(ctx))
}
