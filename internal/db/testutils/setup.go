package testutils

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

const tables = `group_instances, gear_components, gears, applications, users, district_nodes, districts`

// SetupTestDB creates a database connection pool and sets up the schema for testing.
// It returns the pool and a function to start a new transaction for each test case.
// The test is skipped when TEST_DATABASE_URL is not set.
func SetupTestDB(t *testing.T) (*pgxpool.Pool, func() pgx.Tx) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	config, err := pgxpool.ParseConfig(dbURL)
	require.NoError(t, err)

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	require.NoError(t, err)

	// Use a mutex to ensure pool is closed only once
	var mu sync.Mutex
	closed := false

	t.Cleanup(func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			pool.Close()
			closed = true
		}
	})

	// Drop and recreate schema in a transaction
	tx, err := pool.Begin(context.Background())
	require.NoError(t, err)

	_, err = tx.Exec(context.Background(), `DROP TABLE IF EXISTS `+tables+` CASCADE`)
	require.NoError(t, err)

	_, currentFile, _, ok := runtime.Caller(0)
	if !ok {
		panic("Could not get caller information")
	}
	schemaPath := filepath.Join(filepath.Dir(currentFile), "..", "migrations", "0001_init.up.sql")
	schema, err := os.ReadFile(schemaPath)
	require.NoError(t, err)
	_, err = tx.Exec(context.Background(), string(schema))
	require.NoError(t, err)

	err = tx.Commit(context.Background())
	require.NoError(t, err)

	// Truncate tables after each test
	t.Cleanup(func() {
		_, err := pool.Exec(context.Background(), `TRUNCATE TABLE `+tables+` CASCADE`)
		if err != nil {
			t.Fatalf("Failed to truncate tables: %v", err)
		}
	})

	newTx := func() pgx.Tx {
		tx, err := pool.Begin(context.Background())
		require.NoError(t, err)
		return tx
	}

	return pool, newTx
}
