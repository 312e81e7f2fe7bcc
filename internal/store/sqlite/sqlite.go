// Package sqlite implements the unified Store interface using SQLite via
// GORM. Uses modernc.org/sqlite (pure Go, no CGO) through the
// glebarez/sqlite GORM driver. Models and repository logic are shared with
// the PostgreSQL backend.
package sqlite

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	pgstore "github.com/jkaninda/sindano/internal/store/postgres"
)

// Config holds SQLite-specific settings.
type Config struct {
	Path        string // Database file path.
	JournalMode string // "wal" (default), "delete", "truncate", etc.
}

// Open creates a SQLite-backed Store.
func Open(cfg Config, slogger *slog.Logger) (*pgstore.Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	// Ensure parent directory exists.
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
	}

	journalMode := cfg.JournalMode
	if journalMode == "" {
		journalMode = "wal"
	}

	// WAL for concurrent reads; busy_timeout instead of row locks.
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(%s)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
		cfg.Path, journalMode)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: pgstore.NewGormLogger(slogger),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %s: %w", cfg.Path, err)
	}

	return pgstore.NewWithDB(db, "sqlite", slogger), nil
}
