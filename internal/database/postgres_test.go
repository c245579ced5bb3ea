package database

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/pubids/backend/internal/contexts"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/dois"
)

func startPostgres(testContext *testing.T) string {
	testContext.Helper()
	if os.Getenv("TEST_INTEGRATION") == "" {
		testContext.Skip("set TEST_INTEGRATION to run postgres tests")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("pubids_test"),
		postgres.WithUsername("pubids"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		testContext.Fatalf("failed to start postgres: %v", err)
	}
	testContext.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			testContext.Logf("failed to stop postgres: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		testContext.Fatalf("failed to read connection string: %v", err)
	}
	return dsn
}

func TestOpenPostgresMigratesAndEnforcesContexts(testContext *testing.T) {
	dsn := startPostgres(testContext)

	database, err := OpenPostgres(dsn, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open postgres: %v", err)
	}
	if err := MigrateSchema(dsn, zap.NewNop()); err != nil {
		testContext.Fatalf("expected repeated migration to be a no-op: %v", err)
	}

	journal := contexts.Context{Path: "journal", PrimaryLocale: "en"}
	if err := database.Create(&journal).Error; err != nil {
		testContext.Fatalf("failed to create context: %v", err)
	}

	dao, err := dois.NewDAO(dois.DAOConfig{Database: database})
	if err != nil {
		testContext.Fatalf("failed to build dao: %v", err)
	}
	if _, err := dao.Insert(context.Background(), &dois.Doi{ContextID: journal.ID, Value: "10.1234/pg", Settings: dois.Settings{"title": {"en": "Title"}}}); err != nil {
		testContext.Fatalf("failed to insert doi: %v", err)
	}
	if _, err := dao.Insert(context.Background(), &dois.Doi{ContextID: journal.ID + 100, Value: "10.1234/orphan"}); !errors.Is(err, dois.ErrContextNotFound) {
		testContext.Fatalf("expected context not found, got %v", err)
	}

	if err := RollbackSchema(dsn, 4, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to roll back: %v", err)
	}
	if database.Migrator().HasTable("dois") {
		testContext.Fatalf("expected dois table to be dropped")
	}
}
