// Package db opens the SQL stores the history ledger, project check and audit trail run on.
// Postgres is reached through pgx's database/sql driver; SQLite through modernc.org/sqlite.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect identifies the SQL flavour a repository talks to.
type Dialect int

const (
	// Postgres uses $N placeholders and native timestamptz/jsonb columns.
	Postgres Dialect = iota
	// SQLite uses ? placeholders and stores timestamps as RFC 3339 text.
	SQLite
)

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

// DialectFor maps a STORE_DRIVER value to a Dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres":
		return Postgres, nil
	case "sqlite":
		return SQLite, nil
	}
	return 0, fmt.Errorf("db: unsupported driver %q", driver)
}

// Rebind rewrites ? placeholders to $1..$N for Postgres. Queries are written once with ?.
// Placeholders inside quoted literals are not expected and not handled.
func (d Dialect) Rebind(query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// sqliteTimeLayout has a fixed-width fraction so stored text sorts chronologically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Time returns the driver argument for a timestamp column.
func (d Dialect) Time(t time.Time) any {
	if d == SQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

// Timestamp scans a timestamp column stored natively (Postgres) or as text (SQLite).
type Timestamp struct {
	Time time.Time
}

// Scan implements sql.Scanner.
func (ts *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		ts.Time = time.Time{}
		return nil
	case time.Time:
		ts.Time = v.UTC()
		return nil
	case string:
		return ts.parse(v)
	case []byte:
		return ts.parse(string(v))
	}
	return fmt.Errorf("db: cannot scan %T into Timestamp", src)
}

func (ts *Timestamp) parse(s string) error {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			ts.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("db: invalid timestamp %q", s)
}

// Open opens the store for driver ("postgres" or "sqlite"). For sqlite, dsn is a file path.
// Caller must call Close when done.
func Open(driver, dsn string) (*sql.DB, Dialect, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, 0, err
	}
	var database *sql.DB
	switch dialect {
	case SQLite:
		database, err = OpenSQLite(dsn)
	default:
		database, err = OpenPostgres(dsn)
	}
	return database, dialect, err
}

// OpenPostgres opens a Postgres connection using the given DSN. Caller must call Close when done.
func OpenPostgres(dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("db: DATABASE_URL is empty")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, err
	}
	return database, nil
}

// OpenSQLite opens (creating if needed) an SQLite file with WAL, busy_timeout and foreign keys.
// The pool is limited to one connection so pragmas hold and writers are serialized.
func OpenSQLite(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("db: SQLITE_PATH is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("db: mkdir: %w", err)
		}
	}
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	database.SetMaxOpenConns(1)
	for _, p := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := database.Exec(p); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("db: %s: %w", p, err)
		}
	}
	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, err
	}
	return database, nil
}

// IsUniqueViolation reports whether err is a unique or primary key constraint failure
// from either supported driver.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return false
}
