// ABOUTME: Tests for the SQLite store implementation
// ABOUTME: Covers cache and session contracts, expiry, purging, and reopening the same file

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T, maxAge time.Duration) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), maxAge)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	s, err := NewSQLiteStore(dbPath, 0)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created in nested directory")
}

func TestNewSQLiteStore_EmptyPath(t *testing.T) {
	_, err := NewSQLiteStore("", 0)
	assert.Error(t, err)
}

func TestNewSQLiteStore_InMemory(t *testing.T) {
	s, err := NewSQLiteStore(":memory:", 0)
	require.NoError(t, err)
	defer s.Close()
	testCacheContract(t, s.Cache())
}

func TestSQLiteCache_Contract(t *testing.T) {
	testCacheContract(t, newTestSQLiteStore(t, 0).Cache())
}

func TestSQLiteSessions_Contract(t *testing.T) {
	testSessionContract(t, newTestSQLiteStore(t, 0).Sessions())
}

func TestSQLiteCache_Expiry(t *testing.T) {
	s := newTestSQLiteStore(t, 0)
	clock := newFakeClock()
	s.now = clock.Now
	c := s.Cache()
	ctx := context.Background()

	require.NoError(t, c.Write(ctx, "short", []byte("v"), time.Minute))
	require.NoError(t, c.Write(ctx, "forever", []byte("v"), 0))

	clock.Advance(30 * time.Second)
	_, err := c.Read(ctx, "short")
	assert.NoError(t, err)

	clock.Advance(31 * time.Second)
	_, err = c.Read(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.Read(ctx, "forever")
	assert.NoError(t, err)
}

func TestSQLiteSessions_MaxAge(t *testing.T) {
	s := newTestSQLiteStore(t, time.Hour)
	clock := newFakeClock()
	s.now = clock.Now
	ss := s.Sessions()
	ctx := context.Background()

	require.NoError(t, ss.Write(ctx, "sess", "flickr", []byte("v")))
	clock.Advance(30 * time.Minute)
	// Writing another namespace refreshes the whole session.
	require.NoError(t, ss.Write(ctx, "sess", "prefs", []byte("p")))
	clock.Advance(45 * time.Minute)

	ok, err := ss.Check(ctx, "sess", "flickr")
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(time.Hour)
	_, err = ss.Read(ctx, "sess", "flickr")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_PurgeExpired(t *testing.T) {
	s := newTestSQLiteStore(t, time.Hour)
	clock := newFakeClock()
	s.now = clock.Now
	ctx := context.Background()

	require.NoError(t, s.Cache().Write(ctx, "gone", []byte("v"), time.Second))
	require.NoError(t, s.Cache().Write(ctx, "kept", []byte("v"), 0))
	require.NoError(t, s.Sessions().Write(ctx, "old", "flickr", []byte("v")))
	clock.Advance(2 * time.Hour)
	require.NoError(t, s.Sessions().Write(ctx, "new", "flickr", []byte("v")))

	require.NoError(t, s.PurgeExpired(ctx))

	var cacheRows, sessionRows int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&cacheRows))
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM session_entries`).Scan(&sessionRows))
	assert.Equal(t, 1, cacheRows)
	assert.Equal(t, 1, sessionRows)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := NewSQLiteStore(dbPath, 0)
	require.NoError(t, err)
	require.NoError(t, s1.Cache().Write(ctx, "flickr.methods", []byte{0xa1}, 0))
	require.NoError(t, s1.Sessions().Write(ctx, "sess", "flickr", []byte{0x01}))
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteStore(dbPath, 0)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Cache().Read(ctx, "flickr.methods")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xa1}, got)

	got, err = s2.Sessions().Read(ctx, "sess", "flickr")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, got)
}
