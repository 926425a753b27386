// Package storetest provides migrated throwaway stores for tests.
package storetest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"libraryhub/internal/store"
)

// PostgresDSNEnv names the variable that enables Postgres-backed tests.
const PostgresDSNEnv = "LIBRARYHUB_TEST_POSTGRES_DSN"

// New returns a migrated SQLite store living in a temporary directory.
func New(t testing.TB) *store.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "libraryhub.db")
	s, err := store.Open(context.Background(), store.DriverSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

// NewPostgres returns a migrated store on the database named by
// LIBRARYHUB_TEST_POSTGRES_DSN with all tables truncated. The test is
// skipped when the variable is unset or the database is unreachable.
func NewPostgres(t testing.TB) *store.Store {
	t.Helper()

	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skipf("skipping postgres test: %s not set", PostgresDSNEnv)
	}

	s, err := store.Open(context.Background(), store.DriverPostgres, dsn)
	if err != nil {
		t.Skipf("skipping postgres test: could not connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	_, err = s.DB().Exec("TRUNCATE TABLE transactions, books, members, librarians CASCADE")
	require.NoError(t, err)

	return s
}
