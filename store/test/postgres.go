package test

import (
	"os"
	"testing"
)

// GetPostgresDSN returns the DSN of the PostgreSQL instance used for store tests.
// Tests are skipped when RECALL_TEST_POSTGRES_DSN is not set.
func GetPostgresDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("RECALL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("RECALL_TEST_POSTGRES_DSN not set")
	}
	return dsn
}
