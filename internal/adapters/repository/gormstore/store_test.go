package gormstore_test

import (
	"context"
	"os"
	"testing"

	"github.com/okian/padel/internal/adapters/repository"
	"github.com/okian/padel/internal/adapters/repository/gormstore"
	"github.com/okian/padel/internal/adapters/repository/storetest"
)

// The suite needs a disposable database, e.g.
// PADEL_TEST_DSN="host=localhost user=padel password=padel dbname=padel_test sslmode=disable".
func TestPostgresStoreContract(t *testing.T) {
	dsn := os.Getenv("PADEL_TEST_DSN")
	if dsn == "" {
		t.Skip("PADEL_TEST_DSN not set")
	}

	storetest.Run(t, func(t *testing.T) repository.Store {
		ctx := context.Background()
		s, err := gormstore.Open(ctx, dsn, gormstore.WithAutoMigrate(true))
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if err := s.Truncate(ctx); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return s
	})
}
