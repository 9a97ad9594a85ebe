package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Store is the transactional store shared by all repositories
type Store struct {
	db     *sqlx.DB
	driver string
}

// Open connects to the database and verifies the connection
func Open(driver, dsn string, maxConn, maxIdleConn int) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	// each connection to :memory: opens its own empty database, so pin one forever
	if driver == DriverSQLite && strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(maxConn)
		db.SetMaxIdleConns(maxIdleConn)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(2 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return &Store{db: db, driver: driver}, nil
}

// NewStore wraps an existing connection
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, driver: db.DriverName()}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the SQL dialect in use
func (s *Store) Driver() string {
	return s.driver
}

// DB exposes the underlying handle for non-transactional reads
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Ping checks connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Rebind converts ? placeholders into the driver's bindvar style
func (s *Store) Rebind(query string) string {
	return s.db.Rebind(query)
}

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return s.withTx(ctx, nil, fn)
}

// WithReadTx runs fn inside a read-only transaction where the driver supports it
func (s *Store) WithReadTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	var opts *sql.TxOptions
	if s.driver == DriverPostgres {
		opts = &sql.TxOptions{ReadOnly: true}
	}
	return s.withTx(ctx, opts, fn)
}

func (s *Store) withTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}
