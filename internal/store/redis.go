// ABOUTME: Redis-backed cache and session store for deployments running several gateways
// ABOUTME: Cache keys use SET with expiry; each session is one hash with a field per namespace

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key the gateway writes.
const DefaultRedisPrefix = "flickr-gateway:"

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string

	// SessionMaxAge expires a session hash after its last write. Zero keeps it.
	SessionMaxAge time.Duration
}

// RedisStore owns the client shared by RedisCache and RedisSessions.
type RedisStore struct {
	client *redis.Client
	prefix string
	maxAge time.Duration
	logger *slog.Logger
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return NewRedisStoreWithClient(client, opts), nil
}

// NewRedisStoreWithClient wraps an existing client. Only Prefix and
// SessionMaxAge are read from opts.
func NewRedisStoreWithClient(client *redis.Client, opts RedisOptions) *RedisStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	logger := slog.Default().With("component", "store")
	logger.Info("Redis store initialized", "addr", client.Options().Addr, "db", client.Options().DB)
	return &RedisStore{
		client: client,
		prefix: prefix,
		maxAge: opts.SessionMaxAge,
		logger: logger,
	}
}

// Close closes the client.
func (s *RedisStore) Close() error {
	s.logger.Info("closing Redis store")
	return s.client.Close()
}

// Cache returns the cache view of the store.
func (s *RedisStore) Cache() *RedisCache {
	return &RedisCache{s: s}
}

// Sessions returns the session view of the store.
func (s *RedisStore) Sessions() *RedisSessions {
	return &RedisSessions{s: s}
}

// RedisCache implements Cache with plain string keys.
type RedisCache struct {
	s *RedisStore
}

func (c *RedisCache) key(k string) string {
	return c.s.prefix + "cache:" + k
}

// Read returns the value at key, or ErrNotFound.
func (c *RedisCache) Read(ctx context.Context, key string) ([]byte, error) {
	v, err := c.s.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache key: %w", err)
	}
	return v, nil
}

// Write stores value at key with the given expiry.
func (c *RedisCache) Write(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.s.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("writing cache key: %w", err)
	}
	return nil
}

// Delete removes key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.s.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("deleting cache key: %w", err)
	}
	return nil
}

// RedisSessions implements SessionStore with one hash per session.
type RedisSessions struct {
	s *RedisStore
}

func (ss *RedisSessions) key(sessionID string) string {
	return ss.s.prefix + "session:" + sessionID
}

// Read returns the namespace's value, or ErrNotFound.
func (ss *RedisSessions) Read(ctx context.Context, sessionID, namespace string) ([]byte, error) {
	v, err := ss.s.client.HGet(ctx, ss.key(sessionID), namespace).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading session field: %w", err)
	}
	return v, nil
}

// Write stores value under the namespace and restarts the session's expiry.
func (ss *RedisSessions) Write(ctx context.Context, sessionID, namespace string, value []byte) error {
	key := ss.key(sessionID)
	_, err := ss.s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, namespace, value)
		if ss.s.maxAge > 0 {
			pipe.Expire(ctx, key, ss.s.maxAge)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing session field: %w", err)
	}
	return nil
}

// Delete removes the namespace from the session.
func (ss *RedisSessions) Delete(ctx context.Context, sessionID, namespace string) error {
	if err := ss.s.client.HDel(ctx, ss.key(sessionID), namespace).Err(); err != nil {
		return fmt.Errorf("deleting session field: %w", err)
	}
	return nil
}

// Check reports whether the namespace holds a value for the session.
func (ss *RedisSessions) Check(ctx context.Context, sessionID, namespace string) (bool, error) {
	ok, err := ss.s.client.HExists(ctx, ss.key(sessionID), namespace).Result()
	if err != nil {
		return false, fmt.Errorf("checking session field: %w", err)
	}
	return ok, nil
}
