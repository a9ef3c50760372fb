// Package sqlite persists geocoding results in SQLite so repeated searches
// for the same place skip the network.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"concertmap/internal/geo"
	appLog "concertmap/internal/log"
	"concertmap/internal/storage/sqlite/migrations"
)

// Store is the geocode cache.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens (creating if needed) the database at path and applies
// embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	appLog.Info("geocode cache opened", "path", cleanPath)
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Get looks up a cached position by normalized address key.
func (s *Store) Get(ctx context.Context, key string) (geo.Position, bool, error) {
	if err := ctx.Err(); err != nil {
		return geo.Position{}, false, err
	}
	if s == nil || s.sqlDB == nil {
		return geo.Position{}, false, fmt.Errorf("storage is not configured")
	}

	var pos geo.Position
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT lat, lng FROM geocode_cache WHERE address_key = ?`,
		key,
	).Scan(&pos.Lat, &pos.Lng)
	if errors.Is(err, sql.ErrNoRows) {
		return geo.Position{}, false, nil
	}
	if err != nil {
		return geo.Position{}, false, fmt.Errorf("get geocode %q: %w", key, err)
	}
	return pos, true, nil
}

// Put stores or refreshes a position. Invalid positions are rejected.
func (s *Store) Put(ctx context.Context, key, address string, pos geo.Position) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("address key is required")
	}
	if !pos.Valid() {
		return fmt.Errorf("position %s is not valid", pos.String())
	}

	now := toMillis(s.now())
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO geocode_cache (address_key, address, lat, lng, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(address_key) DO UPDATE SET
		   address = excluded.address,
		   lat = excluded.lat,
		   lng = excluded.lng,
		   updated_at = excluded.updated_at`,
		key, address, pos.Lat, pos.Lng, now, now,
	)
	if err != nil {
		return fmt.Errorf("put geocode %q: %w", key, err)
	}
	return nil
}

// PurgeBefore deletes entries not refreshed since cutoff.
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM geocode_cache WHERE updated_at < ?`,
		toMillis(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("purge geocode cache: %w", err)
	}
	return res.RowsAffected()
}
