// ABOUTME: In-memory cache and session store for single-process deployments and tests
// ABOUTME: The cache is size-bounded with per-key TTLs and a background sweep of expired keys

package store

import (
	"container/list"
	"context"
	"slices"
	"sync"
	"time"
)

// DefaultMemoryMaxEntries bounds a MemoryCache created with maxEntries <= 0.
const DefaultMemoryMaxEntries = 1024

// memoryEntry stores a cached value, its expiry and its list element.
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
	element   *list.Element
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryCache is a thread-safe, TTL-based, size-limited Cache.
// Uses a doubly-linked list of keys in write order for O(1) eviction.
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]*memoryEntry
	order      *list.List // oldest write at front
	maxEntries int
	now        func() time.Time
	done       chan struct{}
	closed     bool
}

// NewMemoryCache creates a cache holding up to maxEntries keys.
// A background goroutine periodically removes expired entries.
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryMaxEntries
	}
	c := &MemoryCache{
		entries:    make(map[string]*memoryEntry),
		order:      list.New(),
		maxEntries: maxEntries,
		now:        time.Now,
		done:       make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Read returns a copy of the value at key, or ErrNotFound.
func (c *MemoryCache) Read(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || e.expired(c.now()) {
		return nil, ErrNotFound
	}
	return slices.Clone(e.value), nil
}

// Write stores value at key. If the cache is at capacity the oldest write
// is evicted to make room.
func (c *MemoryCache) Write(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	if e, ok := c.entries[key]; ok {
		e.value = slices.Clone(value)
		e.expiresAt = expiresAt
		c.order.MoveToBack(e.element)
		return nil
	}

	if len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[key] = &memoryEntry{
		value:     slices.Clone(value),
		expiresAt: expiresAt,
		element:   c.order.PushBack(key),
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.order.Remove(e.element)
		delete(c.entries, key)
	}
	return nil
}

// Len returns the number of stored keys, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *MemoryCache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *MemoryCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep removes all expired entries.
func (c *MemoryCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.entries {
		if e.expired(now) {
			c.order.Remove(e.element)
			delete(c.entries, key)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *MemoryCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}

// sessionPruneInterval bounds how often Write scans for aged-out sessions.
const sessionPruneInterval = time.Minute

// MemorySessions is an in-memory SessionStore.
type MemorySessions struct {
	mu        sync.RWMutex
	sessions  map[string]*memorySession // keyed by session ID
	maxAge    time.Duration
	now       func() time.Time
	lastPrune time.Time
}

type memorySession struct {
	values    map[string][]byte // keyed by namespace
	updatedAt time.Time
}

// NewMemorySessions creates a session store. Records untouched for longer
// than maxAge are treated as absent; zero keeps them forever.
func NewMemorySessions(maxAge time.Duration) *MemorySessions {
	return &MemorySessions{
		sessions: make(map[string]*memorySession),
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// live returns the session if it exists and has not aged out. Must be called
// with mu held.
func (m *MemorySessions) live(sessionID string) (*memorySession, bool) {
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	if m.maxAge > 0 && m.now().Sub(s.updatedAt) > m.maxAge {
		return nil, false
	}
	return s, true
}

// Read returns a copy of the namespace's value, or ErrNotFound.
func (m *MemorySessions) Read(ctx context.Context, sessionID, namespace string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.live(sessionID)
	if !ok {
		return nil, ErrNotFound
	}
	v, ok := s.values[namespace]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(v), nil
}

// prune drops every aged-out session, at most once per sessionPruneInterval.
// Must be called with mu held for writing.
func (m *MemorySessions) prune() {
	if m.maxAge <= 0 {
		return
	}
	now := m.now()
	if now.Sub(m.lastPrune) < sessionPruneInterval {
		return
	}
	m.lastPrune = now
	for id, s := range m.sessions {
		if now.Sub(s.updatedAt) > m.maxAge {
			delete(m.sessions, id)
		}
	}
}

// Write stores value under the namespace and refreshes the session's age.
// Aged-out sessions are released from memory here.
func (m *MemorySessions) Write(ctx context.Context, sessionID, namespace string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prune()
	s, ok := m.live(sessionID)
	if !ok {
		s = &memorySession{values: make(map[string][]byte)}
		m.sessions[sessionID] = s
	}
	s.values[namespace] = slices.Clone(value)
	s.updatedAt = m.now()
	return nil
}

// Delete removes the namespace from the session.
func (m *MemorySessions) Delete(ctx context.Context, sessionID, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	delete(s.values, namespace)
	if len(s.values) == 0 {
		delete(m.sessions, sessionID)
	}
	return nil
}

// Check reports whether the namespace holds a value for the session.
func (m *MemorySessions) Check(ctx context.Context, sessionID, namespace string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.live(sessionID)
	if !ok {
		return false, nil
	}
	_, ok = s.values[namespace]
	return ok, nil
}
