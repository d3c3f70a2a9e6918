// Package store persists all research state in a single SQLite database.
// The database runs in WAL mode with synchronous=NORMAL; schema generations
// are tracked through PRAGMA user_version and applied idempotently at open.
// A failed schema upgrade is fatal: the server refuses to start on a store
// it cannot bring to the target version.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"deepresearch/internal/errs"
	"deepresearch/internal/logging"
)

// Store is the embedded relational store. A single connection serializes
// writers; busy_timeout covers the rare reader/writer overlap under WAL.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewStore opens (creating if necessary) the database at path and brings the
// schema to the current version. Use ":memory:" for throwaway test stores.
func NewStore(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewStore")
	defer timer.Stop()

	logging.Store().Infof("opening store at %s", path)

	if !isMemoryPath(path) {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.Store().Errorf("failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.Store().Errorf("failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.Store().Debugf("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.Store().Debugf("failed to set journal_mode=WAL: %v", err)
	}
	// synchronous=NORMAL is safe under WAL and far faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.Store().Debugf("failed to set synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		logging.Store().Errorf("schema upgrade failed: %v", err)
		db.Close()
		return nil, err
	}

	logging.Store().Infof("store ready (schema v%d)", schemaVersion)
	return s, nil
}

// initialize brings the schema to schemaVersion. The DDL is idempotent, so
// an upgrade replays the entire set and bumps user_version once.
func (s *Store) initialize() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version >= schemaVersion {
		logging.Store().Debugf("schema current at v%d", version)
		return nil
	}

	for _, table := range allTables {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	logging.Store().Infof("schema upgraded v%d -> v%d", version, schemaVersion)
	return nil
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	logging.Store().Info("closing store")
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		logging.Store().Debugf("wal checkpoint failed: %v", err)
	}
	return s.db.Close()
}

// DB exposes the underlying handle for maintenance commands.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path the store was opened with.
func (s *Store) Path() string {
	return s.dbPath
}

// GetStats returns per-table row counts.
func (s *Store) GetStats() (map[string]int64, error) {
	timer := logging.StartTimer(logging.CategoryStore, "GetStats")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	tables := append([]string{"research_sessions"}, dependentTables...)
	for _, table := range tables {
		var count int64
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			logging.Store().Debugf("count failed for %s: %v", table, err)
			continue
		}
		stats[table] = count
	}
	return stats, nil
}

// storageErr wraps a driver error with the coded storage family, preserving
// the not-found sentinel where the caller already classified it.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errs.IsNotFound(err) {
		return err
	}
	return errs.Storage(op, err)
}

func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}
