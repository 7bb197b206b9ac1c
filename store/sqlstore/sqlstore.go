/*
Package sqlstore provides a SQL-backed implementation of the payroll and
report storage interfaces.

PURPOSE:
  Implements payroll.Store, payroll.TxStore and report.Store over sqlx.
  The same queries run on SQLite (mattn/go-sqlite3, development and tests)
  and PostgreSQL (lib/pq, production); placeholders are written as ? and
  rebound per driver.

KEY TABLES:
  staff, patients:           Reference data
  income_records:            Patient payments per doctor
  salary_payments:           Regular withdrawals and commission postings
                             (payment_kind, income_id)
  timesheets:                Worked shifts
  salary_withdrawal_audit:   One row per withdrawal evaluation
  timesheet_audit:           One row per timesheet mutation
  outcome_categories,
  outcome_records:           Operating expenses

LOCKING:
  PostgreSQL: LockStaff issues SELECT ... FOR UPDATE.
  SQLite:     No row locks. WithTx holds the store mutex for the whole
              transaction and the pool has a single connection, so write
              transactions are serialized.

DATES:
  Dates are bound as YYYY-MM-DD strings so range comparisons stay correct
  on SQLite, where DATE columns are text.

MIGRATION:
  Schema is created on New(). Queries never alter it.

SEE ALSO:
  - payroll/store.go: Interface definitions
  - payroll/store/memory.go: In-memory implementation for testing
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/policlinic/backoffice/payroll"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

// Options tune the connection pool. Zero values keep database/sql defaults.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store implements all storage interfaces.
type Store struct {
	*queries
	db *sqlx.DB
	mu sync.Mutex
}

// New opens and migrates a database. driver is "sqlite3" or "postgres".
// For SQLite, dsn is a file path; use ":memory:" for an in-memory database.
func New(driver, dsn string, opts Options) (*Store, error) {
	dialect := Dialect(driver)
	switch dialect {
	case DialectSQLite:
		if !strings.Contains(dsn, "?") {
			dsn += "?_foreign_keys=on&_journal_mode=WAL"
		}
	case DialectPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == DialectSQLite {
		// One connection: keeps ":memory:" a single database and serializes writers
		db.SetMaxOpenConns(1)
	} else {
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		}
		if opts.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(opts.ConnMaxLifetime)
		}
	}

	s := &Store{queries: &queries{ext: db, dialect: dialect}, db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// NewSQLite opens a SQLite database with default options.
func NewSQLite(path string) (*Store, error) {
	return New(string(DialectSQLite), path, Options{})
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Ping checks the connection, for health endpoints.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// If fn returns error, transaction is rolled back.
// If fn returns nil, transaction is committed.
func (s *Store) WithTx(ctx context.Context, fn func(payroll.Store) error) error {
	return s.withTx(ctx, func(q *queries) error { return fn(q) })
}

// WithAdminTx is WithTx with access to the writes that sit outside the
// payroll contract (staff lifecycle, expenses, seeding).
func (s *Store) WithAdminTx(ctx context.Context, fn func(*Tx) error) error {
	return s.withTx(ctx, func(q *queries) error { return fn(&Tx{queries: q}) })
}

// Tx exposes every query of the store bound to one transaction.
type Tx struct {
	*queries
}

func (s *Store) withTx(ctx context.Context, fn func(*queries) error) error {
	if s.dialect == DialectSQLite {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{ext: tx, dialect: s.dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// QUERY HELPERS
// =============================================================================

// queries runs every statement against either the pool or one transaction.
type queries struct {
	ext     sqlx.ExtContext
	dialect Dialect
}

func (q *queries) get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, q.ext, dest, q.ext.Rebind(query), args...)
}

func (q *queries) sel(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q.ext, dest, q.ext.Rebind(query), args...)
}

func (q *queries) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.ext.ExecContext(ctx, q.ext.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// insert runs an INSERT and returns the new row's id.
func (q *queries) insert(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := q.get(ctx, &id, query+" RETURNING id", args...); err != nil {
		return 0, err
	}
	return id, nil
}

// deleteOne deletes by id and reports a NotFoundError when nothing matched.
func (q *queries) deleteOne(ctx context.Context, table, kind string, id int64) error {
	n, err := q.exec(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n == 0 {
		return &payroll.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

func notFoundOr(err error, kind string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &payroll.NotFoundError{Kind: kind, ID: id}
	}
	return err
}

func date(t time.Time) string {
	return t.Format(payroll.DateLayout)
}

// monthExpr groups a DATE column by YYYY-MM.
func (q *queries) monthExpr(col string) string {
	if q.dialect == DialectPostgres {
		return "to_char(" + col + ", 'YYYY-MM')"
	}
	return "strftime('%Y-%m', " + col + ")"
}

var (
	_ payroll.Store   = (*queries)(nil)
	_ payroll.TxStore = (*Store)(nil)
)
