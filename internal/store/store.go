package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/multierr"
)

//go:embed schema.sql
var schemaSQL string

// migrations upgrade databases created by older releases. Entry i moves
// user_version from i to i+1; schema.sql always holds the latest shape.
var migrations = []string{
	`CREATE INDEX IF NOT EXISTS idx_jobs_due ON jobs(due_date)`,
}

// dsn builds the go-sqlite3 DSN. The driver applies these parameters to
// every connection it opens:
//   - WAL journal, NORMAL synchronous, 5s busy timeout, foreign keys on
//   - BEGIN IMMEDIATE for every transaction
//   - case-sensitive LIKE, so tenant patterns match exactly
func dsn(path string) string {
	return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000" +
		"&_foreign_keys=on&_txlock=immediate&_cslike=1"
}

// Store is the SQLite-backed persistence layer shared by every tenant.
//
// Read methods are available on both Store and Tx. Writes are only available
// on Tx, inside Update.
type Store struct {
	reader
	db *sql.DB
}

// Open creates or opens the database at path and brings its schema up to
// date. Opening an existing database is safe.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite has a single writer, and :memory: databases
	// live only as long as their connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := migrate(db); err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	return &Store{reader: reader{q: db}, db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Tx is a unit of work: every write made through it commits or rolls back
// together.
type Tx struct {
	reader
	tx *sql.Tx
}

// Update runs fn inside a single IMMEDIATE transaction.
//
// If fn returns an error the transaction is rolled back and fn's error is
// returned unchanged (so typed errors survive). A failed rollback is appended
// to the returned error.
//
// fn must not use the Store itself: the pool has a single connection, which
// the transaction holds until Update returns.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err == nil {
			return
		}
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = multierr.Append(err, fmt.Errorf("rollback: %w", rbErr))
		}
	}()

	if err = fn(&Tx{reader: reader{q: sqlTx}, tx: sqlTx}); err != nil {
		return err
	}

	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// IsUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY
// constraint failure.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// migrate applies schema.sql, then every migration the database has not
// seen yet.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	for ; version < len(migrations); version++ {
		if _, err := db.Exec(migrations[version]); err != nil {
			return fmt.Errorf("migrate to v%d: %w", version+1, err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", len(migrations))); err != nil {
		return fmt.Errorf("write user_version: %w", err)
	}
	return nil
}

// pragma reads a connection setting.
func (s *Store) pragma(name string) (string, error) {
	var value string
	err := s.db.QueryRow("PRAGMA " + name).Scan(&value)
	return value, err
}
