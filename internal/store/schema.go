package store

import (
	"context"
	"fmt"
	"strings"
)

// schema is rendered per engine: {{id}}, {{ts}} and {{money}} are replaced
// with the engine's column types.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS librarians (
		id {{id}} PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		salt TEXT NOT NULL,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		id {{id}} PRIMARY KEY,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		isbn TEXT NOT NULL UNIQUE,
		quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS members (
		id {{id}} PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		phone TEXT,
		outstanding_debt {{money}} NOT NULL DEFAULT 0 CHECK (outstanding_debt >= 0),
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id {{id}} PRIMARY KEY,
		book_id {{id}} REFERENCES books(id) ON DELETE CASCADE,
		member_id {{id}} NOT NULL REFERENCES members(id) ON DELETE CASCADE,
		issue_date {{ts}} NOT NULL,
		return_date {{ts}},
		rent_fee {{money}},
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_book_id ON transactions (book_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_member_id ON transactions (member_id)`,
}

func (s *Store) renderSchema() []string {
	replacer := strings.NewReplacer(
		"{{id}}", "UUID",
		"{{ts}}", "TIMESTAMPTZ",
		"{{money}}", "DOUBLE PRECISION",
	)
	if s.dialect == dialectSQLite {
		replacer = strings.NewReplacer(
			"{{id}}", "TEXT",
			"{{ts}}", "TIMESTAMP",
			"{{money}}", "REAL",
		)
	}

	stmts := make([]string, 0, len(schema))
	for _, stmt := range schema {
		stmts = append(stmts, replacer.Replace(stmt))
	}
	return stmts
}

// Migrate creates the schema. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range s.renderSchema() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}

	s.logger.Info("schema migrated", "dialect", s.dialect, "statements", len(schema))
	return nil
}
