package store_test

import (
	"os"
	"testing"

	"github.com/gkobilansky/xgoat/internal/store"
)

// Runs against a real PostgreSQL when XGOAT_TEST_DATABASE_URL is set.
func TestGormStore(t *testing.T) {
	url := os.Getenv("XGOAT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("XGOAT_TEST_DATABASE_URL not set")
	}

	runStoreSuite(t, func(t *testing.T) store.Store {
		s, err := store.OpenPostgres(url)
		if err != nil {
			t.Fatalf("failed to open postgres: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}
