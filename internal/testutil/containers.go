package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// StartPostgresContainer starts a throwaway Postgres container and returns
// its connection string plus a terminate function. Requires a working Docker
// daemon; callers gate on PGTEST_CONTAINER before invoking.
func StartPostgresContainer(t *testing.T) (string, func()) {
	t.Helper()

	ctx := context.Background()

	pgc, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("sift_test"),
		postgres.WithUsername("sift"),
		postgres.WithPassword("sift"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("pgtest: start postgres container: %v", err)
	}

	dsn, err := pgc.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgc.Terminate(ctx)
		t.Fatalf("pgtest: container connection string: %v", err)
	}

	terminate := func() {
		tctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pgc.Terminate(tctx); err != nil {
			t.Logf("pgtest: terminate container: %v", err)
		}
	}

	return dsn, terminate
}
