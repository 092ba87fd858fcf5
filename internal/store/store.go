// Package store provides read-only access to an Apple Messages database
// (chat.db). It owns connection lifecycle, schema capability probing,
// timestamp scale detection, and the RawRow projection consumed by the
// normalization pipeline.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/wesm/chatvault/internal/appletime"
	"github.com/wesm/chatvault/internal/msgerr"
)

// Store is a read-only handle on one chat.db.
type Store struct {
	db   *sql.DB
	path string // resolved store path, the cache key for process-wide state
}

// The store is externally owned and may be written by Messages.app while we
// read; mode=ro plus a busy timeout keeps us from ever taking write locks.
const sqliteParams = "?mode=ro&_busy_timeout=5000"

// driverName registers ulower on every connection: SQLite's built-in LOWER
// folds ASCII only, which misses matches in any non-English text. ulower is
// Go's Unicode lowercasing, so SQL-side folding agrees with strings.ToLower
// on the Go side.
const driverName = "sqlite3_chatvault"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("ulower", strings.ToLower, true)
		},
	})
}

// isSQLiteError checks if err is a sqlite3.Error whose message contains
// substr. Type-asserting via errors.As is more robust than substring
// matching the whole chain. Handles both value and pointer forms.
func isSQLiteError(err error, substr string) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return strings.Contains(sqliteErr.Error(), substr)
	}
	var sqliteErrPtr *sqlite3.Error
	if errors.As(err, &sqliteErrPtr) && sqliteErrPtr != nil {
		return strings.Contains(sqliteErrPtr.Error(), substr)
	}
	return false
}

// Open opens the Messages database at path read-only. The file must already
// exist; this package never creates or migrates a store.
func Open(path string) (*Store, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, msgerr.StoreUnavailable(path, err)
	}

	db, err := sql.Open(driverName, "file:"+resolved+sqliteParams)
	if err != nil {
		return nil, msgerr.StoreUnavailable(resolved, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, msgerr.StoreUnavailable(resolved, err)
	}

	return &Store{db: db, path: resolved}, nil
}

// resolvePath makes the store path absolute and follows symlinks so the
// process-wide caches key on the actual file identity.
func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	if _, err := os.Stat(abs); err != nil {
		return "", err
	}
	return abs, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the resolved store path.
func (s *Store) Path() string {
	return s.path
}

// DB returns the underlying connection for query layers.
func (s *Store) DB() *sql.DB {
	return s.db
}

// TimestampScale reports the unit this store writes timestamps in, detected
// once per store path from the maximum stored timestamp and cached for the
// process lifetime (see ResetCaches for tests). An empty store defaults to
// nanoseconds, what every modern macOS writes.
func (s *Store) TimestampScale(ctx context.Context) (appletime.Scale, error) {
	if scale, ok := cachedScale(s.path); ok {
		return scale, nil
	}

	var maxDate sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(date) FROM message`).Scan(&maxDate)
	if err != nil {
		return 0, msgerr.StoreUnavailable(s.path, fmt.Errorf("detect timestamp scale: %w", err))
	}

	scale := appletime.ScaleNanoseconds
	if maxDate.Valid {
		scale = appletime.DetectScale(maxDate.Int64)
	}
	putCachedScale(s.path, scale)
	return scale, nil
}

// Stats holds store-level row counts for diagnostics.
type Stats struct {
	MessageCount    int64
	ChatCount       int64
	HandleCount     int64
	AttachmentCount int64
	DatabaseSize    int64
}

// GetStats returns row counts per table and the database file size.
// Missing tables count as zero rather than failing, consistent with
// capability probing.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM message", &stats.MessageCount},
		{"SELECT COUNT(*) FROM chat", &stats.ChatCount},
		{"SELECT COUNT(*) FROM handle", &stats.HandleCount},
		{"SELECT COUNT(*) FROM attachment", &stats.AttachmentCount},
	}

	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			if isSQLiteError(err, "no such table") {
				continue
			}
			return nil, msgerr.StoreUnavailable(s.path, fmt.Errorf("stats %q: %w", q.query, err))
		}
	}

	if info, err := os.Stat(s.path); err == nil {
		stats.DatabaseSize = info.Size()
	}

	return stats, nil
}
