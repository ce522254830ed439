package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ziadkadry99/crystal-viewer/internal/db"
)

// SQLiteBackend keeps cached responses in the response_cache table.
type SQLiteBackend struct {
	db  *db.DB
	now func() time.Time
}

// NewSQLiteBackend wraps an open database.
func NewSQLiteBackend(database *db.DB) *SQLiteBackend {
	return &SQLiteBackend{db: database, now: time.Now}
}

// OpenSQLite opens (or creates) the database file at path.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteBackend(database), nil
}

func (b *SQLiteBackend) Name() string { return "sqlite" }

func (b *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value     []byte
		expiresAt int64
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM response_cache WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}

	if b.now().UnixMilli() >= expiresAt {
		if _, err := b.db.ExecContext(ctx, `DELETE FROM response_cache WHERE key = ? AND expires_at = ?`, key, expiresAt); err != nil {
			return nil, false, fmt.Errorf("evicting expired cache entry: %w", err)
		}
		return nil, false, nil
	}
	return value, true, nil
}

// Set stores value for ttl; a non-positive ttl never expires.
func (b *SQLiteBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := b.now()
	expiresAt := int64(math.MaxInt64)
	if ttl > 0 {
		expiresAt = now.Add(ttl).UnixMilli()
	}
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO response_cache (key, value, created_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at, expires_at = excluded.expires_at`,
		key, value, now.UnixMilli(), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Purge deletes every expired entry and returns how many were removed.
func (b *SQLiteBackend) Purge(ctx context.Context) (int64, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM response_cache WHERE expires_at <= ?`, b.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purging cache: %w", err)
	}
	return res.RowsAffected()
}

// Sweep purges expired entries every interval until ctx is done.
func (b *SQLiteBackend) Sweep(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := b.Purge(ctx)
			if err != nil {
				logger.Warn("cache sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("swept expired cache entries", "removed", n)
			}
		}
	}
}

func (b *SQLiteBackend) Close() error { return b.db.Close() }
