package database

import (
	"context"
	"database/sql"
	_ "embed"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/samber/lo"
	"github.com/samber/oops"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = "1"

// DB is a database/sql handle that rewrites `?` placeholders for the
// configured driver, so repositories can share one set of queries.
type DB struct {
	sql    *sql.DB
	driver Driver
}

// Querier is satisfied by both *DB and *Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open connects to the store and applies the schema. For sqlite the dsn is a
// file path; for postgres it is a connection URL.
func Open(ctx context.Context, driver Driver, dsn string) (*DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, oops.With("driver", driver).New("database dsn is required")
	}

	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSqlite:
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, oops.With("path", dsn, "context", "failed to create database directory").Wrap(err)
			}
		}
		db, err = sql.Open("sqlite", "file:"+dsn+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
		if err != nil {
			return nil, oops.With("path", dsn, "context", "failed to open sqlite").Wrap(err)
		}
		// One writer at a time; sqlite serializes writes anyway.
		db.SetMaxOpenConns(1)
	case DriverPostgres:
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, oops.With("context", "failed to open postgres").Wrap(err)
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)
	default:
		return nil, oops.With("driver", driver).Wrap(ErrInvalidDriver)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, oops.With("driver", driver, "context", "failed to reach database").Wrap(err)
	}

	out := &DB{sql: db, driver: driver}
	if err := out.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return out, nil
}

func (db *DB) migrate(ctx context.Context) error {
	statements := lo.FilterMap(strings.Split(schemaSQL, ";"), func(stmt string, _ int) (string, bool) {
		stmt = strings.TrimSpace(stmt)
		return stmt, stmt != ""
	})
	for _, stmt := range statements {
		if _, err := db.sql.ExecContext(ctx, stmt); err != nil {
			return oops.With("statement", stmt, "context", "failed to apply schema").Wrap(err)
		}
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO metadata (name, value) VALUES (?, ?)
		 ON CONFLICT (name) DO UPDATE SET value = excluded.value`,
		"schema_version", schemaVersion)
	if err != nil {
		return oops.With("context", "failed to record schema version").Wrap(err)
	}
	return nil
}

// Driver returns the backend in use.
func (db *DB) Driver() Driver {
	return db.driver
}

// SchemaVersion returns the applied schema version.
func (db *DB) SchemaVersion(ctx context.Context) (string, error) {
	var v string
	err := db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE name = ?`, "schema_version").Scan(&v)
	if err != nil {
		return "", oops.With("context", "failed to read schema version").Wrap(err)
	}
	return v, nil
}

// Shutdown closes the store when the container shuts down.
func (db *DB) Shutdown() error {
	return db.Close()
}

func (db *DB) Close() error {
	if db == nil || db.sql == nil {
		return nil
	}
	return db.sql.Close()
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.sql.ExecContext(ctx, rebind(db.driver, query), args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.sql.QueryContext(ctx, rebind(db.driver, query), args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.sql.QueryRowContext(ctx, rebind(db.driver, query), args...)
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return oops.With("context", "failed to begin transaction").Wrap(err)
	}
	if err := fn(&Tx{tx: sqlTx, driver: db.driver}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return oops.With("context", "failed to commit transaction").Wrap(err)
	}
	return nil
}

// Tx is a transaction with the same placeholder rewriting as DB.
type Tx struct {
	tx     *sql.Tx
	driver Driver
}

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, rebind(t.driver, query), args...)
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, rebind(t.driver, query), args...)
}

func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, rebind(t.driver, query), args...)
}

// rebind turns `?` placeholders into `$n` for postgres. Queries in this
// module never carry a literal question mark.
func rebind(driver Driver, query string) string {
	if driver != DriverPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ToMicros stores a timestamp as unix microseconds; the zero time maps to 0.
func ToMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

// FromMicros is the inverse of ToMicros.
func FromMicros(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}
