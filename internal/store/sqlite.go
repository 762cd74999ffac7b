// ABOUTME: SQLite-backed cache and session store using modernc.org/sqlite
// ABOUTME: Cache rows carry an absolute expiry; session rows are aged out by their last write

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore owns the database shared by SQLiteCache and SQLiteSessions.
type SQLiteStore struct {
	db     *sql.DB
	maxAge time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path.
// Session records untouched for longer than sessionMaxAge are treated as
// absent; zero keeps them forever.
func NewSQLiteStore(path string, sessionMaxAge time.Duration) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	if path != ":memory:" {
		// Ensure parent directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		maxAge: sessionMaxAge,
		now:    time.Now,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.PurgeExpired(context.Background()); err != nil {
		logger.Warn("purging expired rows failed", "error", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			expires_at INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_cache_entries_expires
			ON cache_entries(expires_at);

		CREATE TABLE IF NOT EXISTS session_entries (
			session_id TEXT NOT NULL,
			namespace TEXT NOT NULL,
			value BLOB NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (session_id, namespace)
		);

		CREATE INDEX IF NOT EXISTS idx_session_entries_updated
			ON session_entries(updated_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Cache returns the cache view of the store.
func (s *SQLiteStore) Cache() *SQLiteCache {
	return &SQLiteCache{s: s}
}

// Sessions returns the session view of the store.
func (s *SQLiteStore) Sessions() *SQLiteSessions {
	return &SQLiteSessions{s: s}
}

// PurgeExpired deletes expired cache rows and aged-out session rows.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) error {
	now := s.now().UnixNano()
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at > 0 AND expires_at <= ?`, now)
	if err != nil {
		return fmt.Errorf("purging cache entries: %w", err)
	}
	cacheRows, _ := res.RowsAffected()

	var sessionRows int64
	if s.maxAge > 0 {
		res, err = s.db.ExecContext(ctx, `DELETE FROM session_entries WHERE updated_at < ?`, now-s.maxAge.Nanoseconds())
		if err != nil {
			return fmt.Errorf("purging session entries: %w", err)
		}
		sessionRows, _ = res.RowsAffected()
	}

	if cacheRows > 0 || sessionRows > 0 {
		s.logger.Debug("purged expired rows", "cache", cacheRows, "sessions", sessionRows)
	}
	return nil
}

// SQLiteCache implements Cache on the cache_entries table.
type SQLiteCache struct {
	s *SQLiteStore
}

// Read returns the value at key, or ErrNotFound if missing or expired.
func (c *SQLiteCache) Read(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := c.s.db.QueryRowContext(ctx, `
		SELECT value FROM cache_entries
		WHERE key = ? AND (expires_at = 0 OR expires_at > ?)
	`, key, c.s.now().UnixNano()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying cache entry: %w", err)
	}
	return value, nil
}

// Write stores value at key, replacing any previous value.
func (c *SQLiteCache) Write(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = c.s.now().Add(ttl).UnixNano()
	}
	_, err := c.s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *SQLiteCache) Delete(ctx context.Context, key string) error {
	if _, err := c.s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting cache entry: %w", err)
	}
	return nil
}

// SQLiteSessions implements SessionStore on the session_entries table.
type SQLiteSessions struct {
	s *SQLiteStore
}

// cutoff is the oldest updated_at still considered live.
func (ss *SQLiteSessions) cutoff() int64 {
	if ss.s.maxAge <= 0 {
		return 0
	}
	return ss.s.now().Add(-ss.s.maxAge).UnixNano()
}

// Read returns the namespace's value, or ErrNotFound.
func (ss *SQLiteSessions) Read(ctx context.Context, sessionID, namespace string) ([]byte, error) {
	var value []byte
	err := ss.s.db.QueryRowContext(ctx, `
		SELECT value FROM session_entries
		WHERE session_id = ? AND namespace = ? AND updated_at >= ?
	`, sessionID, namespace, ss.cutoff()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session entry: %w", err)
	}
	return value, nil
}

// Write stores value under the namespace and refreshes the session's age.
func (ss *SQLiteSessions) Write(ctx context.Context, sessionID, namespace string, value []byte) error {
	now := ss.s.now().UnixNano()
	tx, err := ss.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO session_entries (session_id, namespace, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, namespace) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, sessionID, namespace, value, now); err != nil {
		return fmt.Errorf("writing session entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE session_entries SET updated_at = ? WHERE session_id = ?`, now, sessionID); err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return tx.Commit()
}

// Delete removes the namespace from the session.
func (ss *SQLiteSessions) Delete(ctx context.Context, sessionID, namespace string) error {
	if _, err := ss.s.db.ExecContext(ctx, `
		DELETE FROM session_entries WHERE session_id = ? AND namespace = ?
	`, sessionID, namespace); err != nil {
		return fmt.Errorf("deleting session entry: %w", err)
	}
	return nil
}

// Check reports whether the namespace holds a value for the session.
func (ss *SQLiteSessions) Check(ctx context.Context, sessionID, namespace string) (bool, error) {
	var one int
	err := ss.s.db.QueryRowContext(ctx, `
		SELECT 1 FROM session_entries
		WHERE session_id = ? AND namespace = ? AND updated_at >= ?
	`, sessionID, namespace, ss.cutoff()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking session entry: %w", err)
	}
	return true, nil
}
