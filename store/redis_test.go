// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "decrypt:", ttl), mr
}

func TestRedisStore(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s, mr := newTestRedisStore(t, 0)

	_, found, err := s.Get(ctx, "absent")
	require.NoError(err)
	require.False(found)

	require.NoError(s.Set(ctx, "sig", `{"a":1}`))
	require.True(mr.Exists("decrypt:sig"))

	v, found, err := s.Get(ctx, "sig")
	require.NoError(err)
	require.True(found)
	require.Equal(`{"a":1}`, v)

	require.NoError(s.Remove(ctx, "sig"))
	require.False(mr.Exists("decrypt:sig"))
	require.NoError(s.Remove(ctx, "sig"))

	require.NoError(s.Ping(ctx))
}

func TestRedisStoreTTL(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s, mr := newTestRedisStore(t, time.Minute)

	require.NoError(s.Set(ctx, "sig", "v"))
	require.Equal(time.Minute, mr.TTL("decrypt:sig"))

	mr.FastForward(2 * time.Minute)
	_, found, err := s.Get(ctx, "sig")
	require.NoError(err)
	require.False(found)
}

func TestRedisStoreUnavailable(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s, mr := newTestRedisStore(t, 0)
	mr.Close()

	_, found, err := s.Get(ctx, "sig")
	require.Error(err)
	require.False(found)
	require.Error(s.Set(ctx, "sig", "v"))
	require.Error(s.Ping(ctx))
}

func TestDialRedis(t *testing.T) {
	require := require.New(t)
	mr := miniredis.RunT(t)

	s, err := DialRedis(context.Background(), "redis://"+mr.Addr(), "p:", 0)
	require.NoError(err)
	defer s.Close()

	_, err = DialRedis(context.Background(), "not-a-url", "p:", 0)
	require.Error(err)
}
