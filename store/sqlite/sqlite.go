/*
Package sqlite provides a SQLite-backed implementation of planning.TxRepository.

PURPOSE:
  Development and test storage for the back-office. The schema mirrors the
  production PostgreSQL tables closely enough that the same queries run on
  both with only placeholder differences.

KEY TABLES:
  users, stores, categories:          Directory
  store_manager_assignments,
  area_manager_store_assignments,
  regional_manager_assignments,
  regional_area_manager_assignments:  One manager per subject per table
  week_selections:                    Weeks and their open/closed state
  weekly_plan_submissions:            Submission markers
  weekly_plan_amendments:             Amendment rows
  weekly_plan:                        Plan lines (read in pages)
  excel_sync_logs:                    Hierarchy sync audit trail

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for
  the whole transaction; the transactional view skips locking.

IN-MEMORY DATABASES:
  ":memory:" is private to one connection, so the pool is pinned to a
  single connection for it.

USAGE:
  store, err := sqlite.New("./data/backoffice.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - planning/store.go: Interface definitions
  - store/postgres: Production implementation
  - planning/store/memory.go: In-memory implementation for unit tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/backoffice/planning"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// repo implements planning.Repository over a querier.
type repo struct {
	q    querier
	mu   *sync.RWMutex
	inTx bool
}

func (r *repo) rlock() func() {
	if r.inTx {
		return func() {}
	}
	r.mu.RLock()
	return r.mu.RUnlock
}

func (r *repo) wlock() func() {
	if r.inTx {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

// WithTx on a transactional view runs fn in the same transaction.
func (r *repo) WithTx(_ context.Context, fn func(planning.Repository) error) error {
	return fn(r)
}

// Store implements planning.TxRepository using SQLite.
type Store struct {
	*repo
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, repo: &repo{q: db, mu: &sync.RWMutex{}}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(planning.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&repo{q: sqlTx, mu: s.mu, inTx: true}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		clerk_id TEXT,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_clerk_id
		ON users(clerk_id) WHERE clerk_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);

	CREATE TABLE IF NOT EXISTS stores (
		id TEXT PRIMARY KEY,
		store_code TEXT NOT NULL UNIQUE,
		store_name TEXT NOT NULL,
		region TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		contact_person TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS categories (
		category_code TEXT PRIMARY KEY,
		category_name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		sort_order INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	-- Manager links: at most one manager per subject per table
	CREATE TABLE IF NOT EXISTS store_manager_assignments (
		store_id TEXT PRIMARY KEY,
		store_manager_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS area_manager_store_assignments (
		store_id TEXT PRIMARY KEY,
		area_manager_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS regional_manager_assignments (
		store_id TEXT PRIMARY KEY,
		regional_manager_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS regional_area_manager_assignments (
		area_manager_id TEXT PRIMARY KEY,
		regional_manager_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS week_selections (
		week_reference TEXT PRIMARY KEY,
		week_start_date TEXT NOT NULL,
		week_end_date TEXT NOT NULL,
		year INTEGER NOT NULL,
		week_number INTEGER NOT NULL,
		is_current BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		week_status TEXT NOT NULL DEFAULT 'open',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS weekly_plan_submissions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		store_id TEXT,
		week_reference TEXT NOT NULL,
		submission_type TEXT NOT NULL DEFAULT '',
		level TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		week_status TEXT NOT NULL DEFAULT 'open',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_submissions_week
		ON weekly_plan_submissions(week_reference);

	CREATE TABLE IF NOT EXISTS weekly_plan_amendments (
		id TEXT PRIMARY KEY,
		weekly_plan_id TEXT NOT NULL DEFAULT '',
		store_id TEXT NOT NULL,
		stock_code TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL,
		created_by_role TEXT NOT NULL,
		amendment_type TEXT NOT NULL DEFAULT '',
		original_qty INTEGER NOT NULL DEFAULT 0,
		amended_qty INTEGER NOT NULL DEFAULT 0,
		approved_qty INTEGER,
		justification TEXT NOT NULL DEFAULT '',
		admin_id TEXT NOT NULL DEFAULT '',
		admin_notes TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		week_reference TEXT NOT NULL,
		replaces_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_amendments_week_store
		ON weekly_plan_amendments(week_reference, store_id);
	CREATE INDEX IF NOT EXISTS idx_amendments_user
		ON weekly_plan_amendments(user_id, week_reference);

	CREATE TABLE IF NOT EXISTS weekly_plan (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		week_reference TEXT NOT NULL,
		store_name TEXT NOT NULL DEFAULT '',
		stock_code TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		volume TEXT NOT NULL DEFAULT '0',
		qty_on_hand INTEGER NOT NULL DEFAULT 0,
		order_qty INTEGER NOT NULL DEFAULT 0,
		add_ons_qty INTEGER NOT NULL DEFAULT 0,
		act_order_qty INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_weekly_plan_week
		ON weekly_plan(week_reference, seq);

	CREATE TABLE IF NOT EXISTS excel_sync_logs (
		sync_id TEXT PRIMARY KEY,
		operation_type TEXT NOT NULL,
		total_rows_processed INTEGER NOT NULL DEFAULT 0,
		sync_status TEXT NOT NULL,
		users_created INTEGER NOT NULL DEFAULT 0,
		users_updated INTEGER NOT NULL DEFAULT 0,
		stores_created INTEGER NOT NULL DEFAULT 0,
		stores_updated INTEGER NOT NULL DEFAULT 0,
		assignments_created INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// placeholders returns "?, ?, ?" for n values.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
