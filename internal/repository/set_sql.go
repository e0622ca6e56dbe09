package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"restack-guard/internal/cache"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// dialect holds the statements that differ between SQL backends.
type dialect struct {
	name       string
	createStmt string
	insertStmt string
	existsStmt string
	countStmt  string
	listStmt   string
}

var dialects = map[string]dialect{
	"sqlite": {
		name: "sqlite",
		createStmt: `
		CREATE TABLE IF NOT EXISTS dedup_set_members (
			set_name TEXT NOT NULL,
			member TEXT NOT NULL,
			added_at DATETIME NOT NULL,
			PRIMARY KEY (set_name, member)
		)`,
		insertStmt: `INSERT OR IGNORE INTO dedup_set_members (set_name, member, added_at) VALUES (?, ?, ?)`,
		existsStmt: `SELECT COUNT(*) FROM dedup_set_members WHERE set_name = ? AND member = ?`,
		countStmt:  `SELECT COUNT(*) FROM dedup_set_members WHERE set_name = ?`,
		listStmt:   `SELECT member FROM dedup_set_members WHERE set_name = ?`,
	},
	"mysql": {
		name: "mysql",
		createStmt: `
		CREATE TABLE IF NOT EXISTS dedup_set_members (
			set_name VARCHAR(64) NOT NULL,
			member VARCHAR(255) NOT NULL,
			added_at DATETIME NOT NULL,
			PRIMARY KEY (set_name, member)
		)`,
		insertStmt: `INSERT IGNORE INTO dedup_set_members (set_name, member, added_at) VALUES (?, ?, ?)`,
		existsStmt: `SELECT COUNT(*) FROM dedup_set_members WHERE set_name = ? AND member = ?`,
		countStmt:  `SELECT COUNT(*) FROM dedup_set_members WHERE set_name = ?`,
		listStmt:   `SELECT member FROM dedup_set_members WHERE set_name = ?`,
	},
	"postgres": {
		name: "postgres",
		createStmt: `
		CREATE TABLE IF NOT EXISTS dedup_set_members (
			set_name TEXT NOT NULL,
			member TEXT NOT NULL,
			added_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (set_name, member)
		)`,
		insertStmt: `INSERT INTO dedup_set_members (set_name, member, added_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		existsStmt: `SELECT COUNT(*) FROM dedup_set_members WHERE set_name = $1 AND member = $2`,
		countStmt:  `SELECT COUNT(*) FROM dedup_set_members WHERE set_name = $1`,
		listStmt:   `SELECT member FROM dedup_set_members WHERE set_name = $1`,
	},
}

// SQLSetStore implements cache.SetStore on a single dedup_set_members table.
type SQLSetStore struct {
	db      *sql.DB
	dialect dialect
}

// NewSQLSetStore opens the database for driver ("sqlite", "mysql" or
// "postgres"), verifies the connection and creates the table if needed.
func NewSQLSetStore(driver, dsn string) (*SQLSetStore, error) {
	if _, ok := dialects[driver]; !ok {
		return nil, fmt.Errorf("unsupported SQL driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}

	if driver == "sqlite" {
		db.SetMaxOpenConns(1) // SQLite only supports 1 writer
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driver, err)
	}

	s, err := NewSQLSetStoreFromDB(ctx, db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[SQLSetStore] Initialized with %s backend", driver)
	return s, nil
}

// NewSQLSetStoreFromDB wraps an open database and ensures the table exists.
func NewSQLSetStoreFromDB(ctx context.Context, db *sql.DB, driver string) (*SQLSetStore, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported SQL driver %q", driver)
	}

	if _, err := db.ExecContext(ctx, d.createStmt); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &SQLSetStore{db: db, dialect: d}, nil
}

// IsMember reports whether member is in the named set.
func (s *SQLSetStore) IsMember(ctx context.Context, set, member string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, s.dialect.existsStmt, set, member).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check %s membership: %w", set, err)
	}
	return count > 0, nil
}

// Add inserts member into the named set.
func (s *SQLSetStore) Add(ctx context.Context, set, member string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.insertStmt, set, member, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to add to %s: %w", set, err)
	}
	return nil
}

// Count returns the size of the named set.
func (s *SQLSetStore) Count(ctx context.Context, set string) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, s.dialect.countStmt, set).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", set, err)
	}
	return count, nil
}

// Members returns every member of the named set.
func (s *SQLSetStore) Members(ctx context.Context, set string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.listStmt, set)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", set, err)
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// Close closes the database connection.
func (s *SQLSetStore) Close() error {
	return s.db.Close()
}

// Ensure SQLSetStore implements cache.SetStore
var _ cache.SetStore = (*SQLSetStore)(nil)
