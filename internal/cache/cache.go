// Package cache persists the first page of each timeline in SQLite so the
// viewer has something to show while the first network refresh is running.
package cache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/five82/feedline/internal/feed"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a SQLite-backed first-page cache.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the cache at path and applies migrations.
// Use ":memory:" for a throwaway cache.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and ":memory:" is per connection.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping cache: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migration instance: %w", err)
	}
	// m.Close would close s.db through the driver.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate cache: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load returns the cached first page of timeline. ok is false when nothing is
// cached.
func (s *Store) Load(ctx context.Context, timeline string) (page feed.Page, ok bool, err error) {
	var savedAt string
	err = s.db.QueryRowContext(ctx,
		`SELECT next_cursor, saved_at FROM timeline_pages WHERE timeline = ?`, timeline,
	).Scan(&page.NextCursor, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return feed.Page{}, false, nil
	}
	if err != nil {
		return feed.Page{}, false, fmt.Errorf("load cached page: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM timeline_items WHERE timeline = ? ORDER BY position`, timeline)
	if err != nil {
		return feed.Page{}, false, fmt.Errorf("load cached items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return feed.Page{}, false, fmt.Errorf("scan cached item: %w", err)
		}
		var item feed.Item
		if err := json.Unmarshal([]byte(payload), &item); err != nil {
			return feed.Page{}, false, fmt.Errorf("decode cached item: %w", err)
		}
		page.Items = append(page.Items, item)
	}
	if err := rows.Err(); err != nil {
		return feed.Page{}, false, fmt.Errorf("iterate cached items: %w", err)
	}
	return page, true, nil
}

// Save replaces the cached first page of timeline.
func (s *Store) Save(ctx context.Context, timeline string, page feed.Page) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM timeline_items WHERE timeline = ?`, timeline); err != nil {
			return fmt.Errorf("clear cached items: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO timeline_pages (timeline, next_cursor, saved_at) VALUES (?, ?, ?)
			ON CONFLICT(timeline) DO UPDATE SET next_cursor = excluded.next_cursor, saved_at = excluded.saved_at`,
			timeline, page.NextCursor, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("save cached page: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO timeline_items (timeline, position, item_id, payload) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare item insert: %w", err)
		}
		defer stmt.Close()
		for i, item := range page.Items {
			payload, err := json.Marshal(item)
			if err != nil {
				return fmt.Errorf("encode item %s: %w", item.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, timeline, i, item.ID, string(payload)); err != nil {
				return fmt.Errorf("save item %s: %w", item.ID, err)
			}
		}
		return nil
	})
}

// Clear drops the cached page of timeline.
func (s *Store) Clear(ctx context.Context, timeline string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM timeline_items WHERE timeline = ?`, timeline); err != nil {
			return fmt.Errorf("clear cached items: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM timeline_pages WHERE timeline = ?`, timeline); err != nil {
			return fmt.Errorf("clear cached page: %w", err)
		}
		return nil
	})
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
