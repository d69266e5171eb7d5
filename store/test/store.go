package test

import (
	"context"
	"os"
	"testing"

	"github.com/hrygo/recall/internal/profile"
	"github.com/hrygo/recall/store"
	"github.com/hrygo/recall/store/db"
)

// NewTestingStore opens a migrated store for the driver named by RECALL_TEST_DRIVER
// (sqlite by default, in a temp dir).
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	t.Helper()
	p := getTestingProfile(t)
	driver, err := db.NewDBDriver(p)
	if err != nil {
		t.Fatalf("failed to create db driver: %v", err)
	}

	ts, err := store.New(driver, p)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := ts.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	if p.Driver == "postgres" {
		resetPostgres(ctx, t, ts)
	}
	t.Cleanup(func() {
		_ = ts.Close()
	})
	return ts
}

func getTestingProfile(t *testing.T) *profile.Profile {
	t.Helper()
	p := &profile.Profile{
		Mode:   "dev",
		Data:   t.TempDir(),
		Driver: getDriverFromEnv(),
	}
	p.FromEnv()
	// Tests never talk to a shared cache.
	p.CacheRedisAddr = ""
	if p.Driver == "postgres" {
		p.DSN = GetPostgresDSN(t)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("invalid testing profile: %v", err)
	}
	return p
}

func getDriverFromEnv() string {
	driver := os.Getenv("RECALL_TEST_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}
	return driver
}

func resetPostgres(ctx context.Context, t *testing.T, ts *store.Store) {
	t.Helper()
	_, err := ts.GetDriver().GetDB().ExecContext(ctx,
		"TRUNCATE review_event, review_item, review_group, user_statistics, retention_profile RESTART IDENTITY")
	if err != nil {
		t.Fatalf("failed to reset postgres: %v", err)
	}
}
