// Package store persists scenarios, their runtime status and the
// archive of already-ingested coverages in a SQLite database. All
// access goes through a single process-wide mutex so that status
// transitions are observed in a consistent order by every worker.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver
)

// Store is the shared scenario database. A single Store value is owned
// by the process entry point and handed to every component that needs
// it.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	mu     sync.Mutex
}

// Open opens (creating if necessary) the scenario database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS scenario (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ncn_id TEXT NOT NULL UNIQUE,
			dsrc TEXT NOT NULL,
			dsrc_type TEXT NOT NULL DEFAULT 'EOWCS',
			aoi_ll_east REAL NOT NULL,
			aoi_ll_north REAL NOT NULL,
			aoi_ur_east REAL NOT NULL,
			aoi_ur_north REAL NOT NULL,
			from_date TEXT NOT NULL,
			to_date TEXT NOT NULL,
			starting_date TEXT NOT NULL DEFAULT '',
			repeat_interval INTEGER NOT NULL DEFAULT 0,
			cat_registration INTEGER NOT NULL DEFAULT 0,
			sensor_type TEXT NOT NULL DEFAULT '',
			view_angle TEXT NOT NULL DEFAULT '',
			cloud_cover TEXT NOT NULL DEFAULT '',
			coastline_check INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS scenario_status (
			scenario_id INTEGER PRIMARY KEY REFERENCES scenario(id) ON DELETE CASCADE,
			status TEXT NOT NULL,
			is_available INTEGER NOT NULL DEFAULT 1,
			done REAL NOT NULL DEFAULT 0,
			active_dar TEXT NOT NULL DEFAULT '',
			ingestion_pid INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS eoid (
			scenario_id INTEGER NOT NULL REFERENCES scenario(id) ON DELETE CASCADE,
			eoid TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS extracondition (
			scenario_id INTEGER NOT NULL REFERENCES scenario(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			xpath TEXT NOT NULL,
			text TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS script (
			scenario_id INTEGER NOT NULL REFERENCES scenario(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			path TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS archive (
			scenario_id INTEGER NOT NULL,
			eoid TEXT NOT NULL,
			UNIQUE (scenario_id, eoid)
		);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
