// Package store persists registry snapshots to a SQL database so a schema
// set can be exported once and restored without reading source files.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/metagraph-dev/metagraph/pkg/schema"
	"github.com/metagraph-dev/metagraph/pkg/schema/avro"
	"github.com/metagraph-dev/metagraph/runtime/registry"
)

var tables = []string{
	`CREATE TABLE IF NOT EXISTS shared_types (
		name TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		document TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS aspect_schemas (
		name TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		document TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS entity_definitions (
		name TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		document TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS store_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// Store reads and writes snapshots
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// New wraps an open database
func New(db *sql.DB, dialect Dialect, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, dialect: dialect, logger: logger}
}

// Initialize creates the store tables if they don't exist
func (s *Store) Initialize(ctx context.Context) error {
	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create store tables: %w", err)
		}
	}
	return nil
}

// Save replaces the stored schema set with snap in a single transaction
func (s *Store) Save(ctx context.Context, snap *registry.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"shared_types", "aspect_schemas", "entity_definitions"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	pos := 0
	for t := range snap.Types() {
		doc, err := avro.EncodeType(t)
		if err != nil {
			return fmt.Errorf("failed to encode type %s: %w", t.FullName(), err)
		}
		if err := s.insert(ctx, tx, "shared_types", t.FullName(), pos, doc); err != nil {
			return err
		}
		pos++
	}

	pos = 0
	for a := range snap.ListAspects() {
		doc, err := avro.EncodeAspect(a)
		if err != nil {
			return fmt.Errorf("failed to encode aspect %s: %w", a.Name, err)
		}
		if err := s.insert(ctx, tx, "aspect_schemas", a.Name, pos, doc); err != nil {
			return err
		}
		pos++
	}

	pos = 0
	for e := range snap.ListEntities() {
		doc, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode entity %s: %w", e.Name, err)
		}
		if err := s.insert(ctx, tx, "entity_definitions", e.Name, pos, doc); err != nil {
			return err
		}
		pos++
	}

	meta := map[string]string{
		"fingerprint": snap.Fingerprint(),
		"saved_at":    time.Now().UTC().Format(time.RFC3339),
	}
	for _, key := range []string{"fingerprint", "saved_at"} {
		if err := s.setMeta(ctx, tx, key, meta[key]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	s.logger.Info("snapshot saved",
		zap.String("dialect", s.dialect.Name),
		zap.Int("aspects", snap.NumAspects()),
		zap.Int("entities", snap.NumEntities()),
	)
	return nil
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, table, name string, pos int, doc []byte) error {
	query := s.dialect.Rebind("INSERT INTO " + table + " (name, position, document) VALUES (?, ?, ?)")
	if _, err := tx.ExecContext(ctx, query, name, pos, string(doc)); err != nil {
		return fmt.Errorf("failed to store %s in %s: %w", name, table, err)
	}
	return nil
}

func (s *Store) setMeta(ctx context.Context, tx *sql.Tx, key, value string) error {
	if _, err := tx.ExecContext(ctx, s.dialect.Rebind("DELETE FROM store_meta WHERE key = ?"), key); err != nil {
		return fmt.Errorf("failed to clear %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, s.dialect.Rebind("INSERT INTO store_meta (key, value) VALUES (?, ?)"), key, value); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

// Fingerprint returns the fingerprint of the stored snapshot, or "" when
// nothing has been saved yet
func (s *Store) Fingerprint(ctx context.Context) (string, error) {
	var fp string
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind("SELECT value FROM store_meta WHERE key = ?"), "fingerprint").Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read stored fingerprint: %w", err)
	}
	return fp, nil
}

// Load rebuilds the stored schema set. Rows are registered in saved order,
// which is the order they were registered in originally.
func (s *Store) Load(ctx context.Context) (*registry.Snapshot, error) {
	b := registry.NewBuilder()

	err := s.each(ctx, "shared_types", func(name string, doc []byte) error {
		d, err := avro.Decode(doc)
		if err != nil {
			return err
		}
		if len(d.Types) != 1 || len(d.Aspects) != 0 {
			return fmt.Errorf("expected one shared type")
		}
		return b.RegisterType(d.Types[0])
	})
	if err != nil {
		return nil, err
	}

	err = s.each(ctx, "aspect_schemas", func(name string, doc []byte) error {
		a, err := avro.DecodeAspect(doc)
		if err != nil {
			return err
		}
		return b.RegisterAspect(a)
	})
	if err != nil {
		return nil, err
	}

	err = s.each(ctx, "entity_definitions", func(name string, doc []byte) error {
		var def schema.EntityDefinition
		if err := json.Unmarshal(doc, &def); err != nil {
			return err
		}
		return b.DefineEntity(&def)
	})
	if err != nil {
		return nil, err
	}

	return b.Build(), nil
}

func (s *Store) each(ctx context.Context, table string, fn func(name string, doc []byte) error) error {
	rows, err := s.db.QueryContext(ctx, "SELECT name, document FROM "+table+" ORDER BY position")
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, doc string
		if err := rows.Scan(&name, &doc); err != nil {
			return fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		if err := fn(name, []byte(doc)); err != nil {
			return fmt.Errorf("%s %s: %w", table, name, err)
		}
	}
	return rows.Err()
}
