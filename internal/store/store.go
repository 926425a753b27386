// Package store owns the connection to the relational database backing
// LibraryHub: opening and pooling, schema migration, transactions and the
// mapping of driver errors onto the shared error taxonomy.
//
// Postgres (through lib/pq or pgx) is the production engine; SQLite is
// supported for local development and tests.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // query builder dialect
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // query builder dialect
	_ "github.com/jackc/pgx/v5/stdlib"                  // pgx driver
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"libraryhub/internal/errs"
	"libraryhub/internal/logging"
)

const (
	DriverPostgres = "postgres"
	DriverPGX      = "pgx"
	DriverSQLite   = "sqlite3"

	// sqliteDriver is go-sqlite3 with a Unicode-aware LOWER.
	sqliteDriver = "sqlite3_libraryhub"

	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite3"

	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = time.Hour

	logMsgTxRollback = "transaction rolled back"
	logMsgTxFailed   = "transaction failed"
	logAttrTx        = "tx"
	logAttrError     = "error"
)

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			// The built-in lower() only folds ASCII.
			return conn.RegisterFunc("lower", foldLower, true)
		},
	})
	sqlx.BindDriver(sqliteDriver, sqlx.QUESTION)
}

// foldLower lowercases TEXT and BLOB values and passes everything else,
// NULL included, through unchanged.
func foldLower(v any) any {
	switch s := v.(type) {
	case string:
		return strings.ToLower(s)
	case []byte:
		if s == nil {
			return nil
		}
		return bytes.ToLower(s)
	default:
		return v
	}
}

// Store is the explicit handle every manager receives. It is safe for
// concurrent use.
type Store struct {
	db      *sqlx.DB
	dialect string
	tracer  trace.Tracer
	logger  logging.Logger

	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for transaction failures.
func WithLogger(logger logging.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithPoolLimits overrides the connection pool sizing. Zero values keep the
// defaults. SQLite always uses a single connection.
func WithPoolLimits(maxOpen, maxIdle int, maxLifetime time.Duration) Option {
	return func(s *Store) {
		if maxOpen > 0 {
			s.maxOpenConns = maxOpen
		}
		if maxIdle > 0 {
			s.maxIdleConns = maxIdle
		}
		if maxLifetime > 0 {
			s.connMaxLifetime = maxLifetime
		}
	}
}

// Open connects to the database identified by driver and dsn and verifies
// the connection.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	switch driver {
	case DriverPostgres, DriverPGX:
	case DriverSQLite:
		driver, dsn = sqliteDriver, sqliteDSN(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s, err := New(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return s, nil
}

// New wraps an already opened connection.
func New(db *sqlx.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("nil database connection")
	}

	s := &Store{
		db:              db,
		tracer:          otel.Tracer("libraryhub/store"),
		logger:          logging.Discard(),
		maxOpenConns:    defaultMaxOpenConns,
		maxIdleConns:    defaultMaxIdleConns,
		connMaxLifetime: defaultConnMaxLifetime,
	}

	switch db.DriverName() {
	case DriverPostgres, DriverPGX:
		s.dialect = dialectPostgres
	case DriverSQLite, sqliteDriver:
		s.dialect = dialectSQLite
	default:
		return nil, fmt.Errorf("unsupported database driver %q", db.DriverName())
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.dialect == dialectSQLite {
		// One writer at a time; concurrent callers queue on the pool.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(s.maxOpenConns)
		db.SetMaxIdleConns(s.maxIdleConns)
		db.SetConnMaxLifetime(s.connMaxLifetime)
	}

	return s, nil
}

// sqliteDSN enables foreign keys, a busy timeout and immediate write locks
// on every connection.
func sqliteDSN(dsn string) string {
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}

	params := []string{"_foreign_keys=1", "_busy_timeout=5000", "_txlock=immediate"}
	for _, p := range params {
		key := p[:strings.Index(p, "=")+1]
		if strings.Contains(dsn, key) {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + p
		} else {
			dsn += "?" + p
		}
	}

	return dsn
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the pooled connection for single statement reads and writes.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Builder returns a goqu query builder for the connected engine. Built
// queries must be rendered with Prepared(true).
func (s *Store) Builder() goqu.DialectWrapper {
	return goqu.Dialect(s.dialect)
}

// Rebind converts a query written with ? placeholders to the engine's
// bind syntax.
func (s *Store) Rebind(query string) string {
	return s.db.Rebind(query)
}

// LockClause returns the row locking suffix for SELECTs that precede an
// update of the same row inside a transaction. SQLite serialises writers
// with an immediate transaction lock instead.
func (s *Store) LockClause() string {
	if s.dialect == dialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// IsSQLite reports whether the store is backed by SQLite.
func (s *Store) IsSQLite() bool {
	return s.dialect == dialectSQLite
}

// WithTx runs fn inside a database transaction. The transaction commits
// when fn returns nil and rolls back otherwise. Classified errors from fn
// are returned unchanged; anything else is reported as a storage failure.
func (s *Store) WithTx(ctx context.Context, name string, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	return s.runTx(ctx, name, nil, fn)
}

// ReadTx runs fn in a read-only transaction whose statements all see the
// same snapshot. On Postgres that is REPEATABLE READ; SQLite transactions
// are already serialised.
func (s *Store) ReadTx(ctx context.Context, name string, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	var opts *sql.TxOptions
	if s.dialect == dialectPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return s.runTx(ctx, name, opts, fn)
}

func (s *Store) runTx(ctx context.Context, name string, opts *sql.TxOptions, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	ctx, span := s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", s.dialect),
		attribute.Bool("tx.read_only", opts != nil && opts.ReadOnly),
	))
	defer span.End()

	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin transaction")
		s.logger.Error(logMsgTxFailed, logAttrTx, name, logAttrError, err.Error())
		return errs.Storage(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		if errs.KindOf(err) != errs.KindUnknown {
			span.SetAttributes(attribute.String("tx.outcome", errs.CodeOf(err)))
			s.logger.Debug(logMsgTxRollback, logAttrTx, name, logAttrError, err.Error())
			return err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction body")
		s.logger.Error(logMsgTxFailed, logAttrTx, name, logAttrError, err.Error())
		return errs.Storage(err)
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit")
		s.logger.Error(logMsgTxFailed, logAttrTx, name, logAttrError, err.Error())
		return errs.Storage(fmt.Errorf("commit transaction: %w", err))
	}

	span.SetAttributes(attribute.String("tx.outcome", "committed"))
	return nil
}

// RowsAffected returns the number of rows changed by res.
func RowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
