// ABOUTME: Tests for the Redis store against an in-process miniredis server
// ABOUTME: Covers cache and session contracts, key layout, and expiry via FastForward

package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, maxAge time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), RedisOptions{Addr: mr.Addr(), SessionMaxAge: maxAge})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedisCache_Contract(t *testing.T) {
	s, _ := newTestRedisStore(t, 0)
	testCacheContract(t, s.Cache())
}

func TestRedisSessions_Contract(t *testing.T) {
	s, _ := newTestRedisStore(t, 0)
	testSessionContract(t, s.Sessions())
}

func TestRedisCache_KeyLayoutAndTTL(t *testing.T) {
	s, mr := newTestRedisStore(t, 0)
	ctx := context.Background()

	require.NoError(t, s.Cache().Write(ctx, "flickr.methods", []byte("table"), time.Minute))

	assert.True(t, mr.Exists("flickr-gateway:cache:flickr.methods"))
	assert.Equal(t, time.Minute, mr.TTL("flickr-gateway:cache:flickr.methods"))

	mr.FastForward(61 * time.Second)
	_, err := s.Cache().Read(ctx, "flickr.methods")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisSessions_HashLayoutAndMaxAge(t *testing.T) {
	s, mr := newTestRedisStore(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Sessions().Write(ctx, "abc", "flickr", []byte("state")))

	assert.Equal(t, "state", mr.HGet("flickr-gateway:session:abc", "flickr"))
	assert.Equal(t, time.Hour, mr.TTL("flickr-gateway:session:abc"))

	mr.FastForward(2 * time.Hour)
	ok, err := s.Sessions().Check(ctx, "abc", "flickr")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRedisStore_RequiresAddr(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisOptions{})
	assert.Error(t, err)
}
