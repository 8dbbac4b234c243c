package vfs

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQL serves templates out of a `name, source, updated_at` table (§11's
// "sqlvfs" dependency wiring), one table per driver family behind the same
// engine.VFS contract localvfs.go implements against the filesystem. The
// driver is picked from the DSN's scheme the way a connection URL normally
// would, rather than forcing the caller to also name the driver.
type SQL struct {
	db    *sql.DB
	table string
}

// DriverForDSN maps a connection-string scheme to the database/sql driver
// name registered by this file's blank imports.
func DriverForDSN(dsn string) (string, string, error) {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return "", "", fmt.Errorf("sqlvfs: dsn %q has no scheme", dsn)
	}
	switch scheme {
	case "postgres", "postgresql":
		return "postgres", dsn, nil
	case "mysql":
		return "mysql", rest, nil
	case "sqlserver":
		return "sqlserver", dsn, nil
	case "sqlite", "sqlite3":
		return "sqlite3", rest, nil
	default:
		return "", "", fmt.Errorf("sqlvfs: unsupported dsn scheme %q", scheme)
	}
}

// OpenSQL opens a connection using the driver implied by dsn's scheme and
// wraps it as a VFS reading rows from table (default "ajj_templates" when
// table is empty).
func OpenSQL(dsn, table string) (*SQL, error) {
	driver, connStr, err := DriverForDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("sqlvfs: open: %w", err)
	}
	if table == "" {
		table = "ajj_templates"
	}
	return &SQL{db: db, table: table}, nil
}

// NewSQL wraps an already-open *sql.DB, for callers that manage their own
// connection pool/lifecycle rather than handing OpenSQL a DSN.
func NewSQL(db *sql.DB, table string) *SQL {
	if table == "" {
		table = "ajj_templates"
	}
	return &SQL{db: db, table: table}
}

func (s *SQL) Close() error { return s.db.Close() }

// Load reads one row's source and updated_at by name.
func (s *SQL) Load(path string) ([]byte, time.Time, error) {
	row := s.db.QueryRow(fmt.Sprintf("SELECT source, updated_at FROM %s WHERE name = ?", s.table), path)
	var source string
	var updatedAt time.Time
	if err := row.Scan(&source, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, time.Time{}, fmt.Errorf("sqlvfs: no template named %q", path)
		}
		return nil, time.Time{}, fmt.Errorf("sqlvfs: load %q: %w", path, err)
	}
	return []byte(source), updatedAt, nil
}

// Timestamp reads just updated_at, for callers that already have content
// cached and only need to check freshness.
func (s *SQL) Timestamp(path string) (time.Time, error) {
	row := s.db.QueryRow(fmt.Sprintf("SELECT updated_at FROM %s WHERE name = ?", s.table), path)
	var updatedAt time.Time
	if err := row.Scan(&updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, fmt.Errorf("sqlvfs: no template named %q", path)
		}
		return time.Time{}, fmt.Errorf("sqlvfs: timestamp %q: %w", path, err)
	}
	return updatedAt, nil
}

// IsCurrent reports whether path's row still carries the same updated_at,
// matching unix_vfs_timestamp_is_current's equality semantics.
func (s *SQL) IsCurrent(path string, since time.Time) (bool, error) {
	ts, err := s.Timestamp(path)
	if err != nil {
		return false, err
	}
	return ts.Equal(since), nil
}
