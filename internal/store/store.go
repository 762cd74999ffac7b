// ABOUTME: Storage interfaces for the method cache and per-session records
// ABOUTME: Memory, SQLite and Redis backends implement them; Open selects one by adapter name

package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested key or session record does not exist
var ErrNotFound = errors.New("not found")

// ErrUnknownAdapter is returned by Open for an unrecognized adapter name
var ErrUnknownAdapter = errors.New("unknown storage adapter")

// Adapter names accepted by Open
const (
	AdapterMemory = "memory"
	AdapterSQLite = "sqlite"
	AdapterRedis  = "redis"
)

// Cache is a byte-valued key store with per-key expiry.
// A zero ttl means the value does not expire.
type Cache interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// SessionStore keeps one value per (session, namespace) pair.
type SessionStore interface {
	Read(ctx context.Context, sessionID, namespace string) ([]byte, error)
	Write(ctx context.Context, sessionID, namespace string, value []byte) error
	Delete(ctx context.Context, sessionID, namespace string) error
	Check(ctx context.Context, sessionID, namespace string) (bool, error)
}

// Options selects and configures the backends returned by Open.
type Options struct {
	CacheAdapter   string
	SessionAdapter string

	// SQLitePath is the database file used by the sqlite adapter.
	SQLitePath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// SessionMaxAge expires idle session records. Zero keeps them forever.
	SessionMaxAge time.Duration

	// MemoryMaxEntries bounds the in-memory cache.
	MemoryMaxEntries int
}

// Backends holds the opened cache and session stores.
type Backends struct {
	Cache    Cache
	Sessions SessionStore

	closers []func() error
}

// Close releases every opened backend.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open creates the cache and session backends named in opts. When both use
// the same adapter they share one connection.
func Open(ctx context.Context, opts Options) (*Backends, error) {
	b := &Backends{}
	var (
		sqliteStore *SQLiteStore
		redisStore  *RedisStore
	)

	sqliteFor := func() (*SQLiteStore, error) {
		if sqliteStore != nil {
			return sqliteStore, nil
		}
		s, err := NewSQLiteStore(opts.SQLitePath, opts.SessionMaxAge)
		if err != nil {
			return nil, err
		}
		sqliteStore = s
		b.closers = append(b.closers, s.Close)
		return s, nil
	}
	redisFor := func() (*RedisStore, error) {
		if redisStore != nil {
			return redisStore, nil
		}
		s, err := NewRedisStore(ctx, RedisOptions{
			Addr:          opts.RedisAddr,
			Password:      opts.RedisPassword,
			DB:            opts.RedisDB,
			SessionMaxAge: opts.SessionMaxAge,
		})
		if err != nil {
			return nil, err
		}
		redisStore = s
		b.closers = append(b.closers, s.Close)
		return s, nil
	}

	switch opts.CacheAdapter {
	case "", AdapterMemory:
		c := NewMemoryCache(opts.MemoryMaxEntries)
		b.Cache = c
		b.closers = append(b.closers, func() error { c.Close(); return nil })
	case AdapterSQLite:
		s, err := sqliteFor()
		if err != nil {
			return nil, fmt.Errorf("opening sqlite cache: %w", err)
		}
		b.Cache = s.Cache()
	case AdapterRedis:
		s, err := redisFor()
		if err != nil {
			return nil, fmt.Errorf("opening redis cache: %w", err)
		}
		b.Cache = s.Cache()
	default:
		return nil, fmt.Errorf("%w: cache adapter %q", ErrUnknownAdapter, opts.CacheAdapter)
	}

	switch opts.SessionAdapter {
	case "", AdapterMemory:
		b.Sessions = NewMemorySessions(opts.SessionMaxAge)
	case AdapterSQLite:
		s, err := sqliteFor()
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("opening sqlite sessions: %w", err)
		}
		b.Sessions = s.Sessions()
	case AdapterRedis:
		s, err := redisFor()
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("opening redis sessions: %w", err)
		}
		b.Sessions = s.Sessions()
	default:
		b.Close()
		return nil, fmt.Errorf("%w: session adapter %q", ErrUnknownAdapter, opts.SessionAdapter)
	}

	return b, nil
}
