package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
)

// Dialect captures the differences between the supported SQL backends
type Dialect struct {
	Name   string // "sqlite" or "postgres"
	Driver string // database/sql driver name
}

var (
	// SQLite stores the schema set in a local file
	SQLite = Dialect{Name: "sqlite", Driver: "sqlite3"}

	// Postgres stores the schema set in a PostgreSQL database
	Postgres = Dialect{Name: "postgres", Driver: "pgx"}
)

// Rebind rewrites '?' placeholders into the dialect's bind syntax
func (d Dialect) Rebind(query string) string {
	if d.Name != Postgres.Name {
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

// ParseURL picks the dialect for a database URL and returns the DSN to hand
// to the driver.
//
//	sqlite://metagraph.db     -> sqlite3, "metagraph.db"
//	file:metagraph.db?mode=rw -> sqlite3, unchanged
//	postgres://host/db        -> pgx, unchanged
func ParseURL(url string) (Dialect, string, error) {
	switch {
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		if path == "" {
			return Dialect{}, "", fmt.Errorf("sqlite URL has no path: %s", url)
		}
		return SQLite, path, nil
	case strings.HasPrefix(url, "file:"):
		return SQLite, url, nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return Postgres, url, nil
	default:
		return Dialect{}, "", fmt.Errorf("unsupported database URL: %s", url)
	}
}

// Open opens and pings the database behind url
func Open(url string) (*sql.DB, Dialect, error) {
	dialect, dsn, err := ParseURL(url)
	if err != nil {
		return nil, Dialect{}, err
	}
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, Dialect{}, fmt.Errorf("failed to open %s database: %w", dialect.Name, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, Dialect{}, fmt.Errorf("failed to connect to %s database: %w", dialect.Name, err)
	}
	if dialect == SQLite {
		// One writer at a time keeps SQLite from returning SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}
	return db, dialect, nil
}
