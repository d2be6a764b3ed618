package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"

	_ "modernc.org/sqlite" // The pure Go SQLite driver
)

// ErrNotFound is returned by updates and deletes that matched no row.
// Single-row reads keep returning sql.ErrNoRows.
var ErrNotFound = errors.New("record not found")

// Service owns the SQLite connection pool. Reads go straight to the pool;
// writes are serialised through WriteTx so SQLite never sees two writers.
type Service struct {
	dbPath string
	db     *sql.DB

	writeMu sync.Mutex
}

// NewService opens the database at dbPath with foreign keys enforced.
func NewService(dbPath string) (*Service, error) {
	// modernc.org/sqlite takes pragmas as _pragma query parameters.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", dbPath, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to %s: %w", dbPath, err)
	}

	return &Service{dbPath: dbPath, db: db}, nil
}

// WriteTx runs writeFunc inside a transaction while holding the write lock.
// The transaction is rolled back if writeFunc returns an error.
func (s *Service) WriteTx(writeFunc func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := writeFunc(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

// DB exposes the pool for read-only queries.
func (s *Service) DB() *sql.DB {
	return s.db
}

// Close closes the pool.
func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		log.Printf("WARN: closing %s: %v", s.dbPath, err)
		return
	}
	log.Println("INFO: database connection closed.")
}

// InitSchema creates all tables if they don't exist. Safe to run on every start.
func (s *Service) InitSchema() error {
	return s.WriteTx(func(tx *sql.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("init schema: %w", err)
			}
		}
		return nil
	})
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		strava_id INTEGER PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		picture TEXT NOT NULL DEFAULT '',
		sex TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		access_token TEXT NOT NULL DEFAULT '',
		refresh_token TEXT NOT NULL DEFAULT '',
		token_expiry TEXT,
		created_at TEXT NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS races (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		info TEXT NOT NULL DEFAULT '',
		start_date TEXT,
		end_date TEXT,
		organiser_id INTEGER NOT NULL,
		is_private INTEGER NOT NULL DEFAULT 1,
		password_hash TEXT NOT NULL DEFAULT '',
		hide_leaderboard_until_finish INTEGER NOT NULL DEFAULT 0,
		use_sex_categories INTEGER NOT NULL DEFAULT 0,
		finish_notified INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		FOREIGN KEY (organiser_id) REFERENCES users (strava_id)
	);`,

	`CREATE TABLE IF NOT EXISTS race_segments (
		race_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		segment_id INTEGER NOT NULL,
		segment_name TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (race_id, segment_id),
		FOREIGN KEY (race_id) REFERENCES races (id) ON DELETE CASCADE
	);`,

	`CREATE TABLE IF NOT EXISTS participants (
		id INTEGER PRIMARY KEY,
		race_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		submitted_ride INTEGER NOT NULL DEFAULT 0,
		submitted_activity_id INTEGER,
		joined_at TEXT NOT NULL,
		UNIQUE (race_id, user_id),
		FOREIGN KEY (race_id) REFERENCES races (id) ON DELETE CASCADE,
		FOREIGN KEY (user_id) REFERENCES users (strava_id) ON DELETE CASCADE
	);`,

	`CREATE TABLE IF NOT EXISTS participant_segment_results (
		id INTEGER PRIMARY KEY,
		participant_id INTEGER NOT NULL,
		segment_id INTEGER NOT NULL,
		segment_name TEXT NOT NULL DEFAULT '',
		elapsed_time_seconds INTEGER,
		FOREIGN KEY (participant_id) REFERENCES participants (id) ON DELETE CASCADE
	);`,

	`CREATE INDEX IF NOT EXISTS idx_participants_user ON participants (user_id);`,
	`CREATE INDEX IF NOT EXISTS idx_results_participant ON participant_segment_results (participant_id);`,
	`CREATE INDEX IF NOT EXISTS idx_races_finish ON races (finish_notified, end_date);`,
}
