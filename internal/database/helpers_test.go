package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/fansite/internal/config"
	"github.com/parsascontentcorner/fansite/internal/models"
)

// startPostgres starts a PostgreSQL container and returns its connection settings
func startPostgres(ctx context.Context) (testcontainers.Container, *config.DatabaseConfig, error) {
	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get container host: %w", err)
	}

	mappedPort, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	return pgContainer, &config.DatabaseConfig{
		Host:         host,
		Port:         mappedPort.Port(),
		User:         "testuser",
		Password:     "testpass",
		Name:         "testdb",
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}, nil
}

// setupTestDB returns a migrated database backed by a fresh container.
// The test is skipped when no container runtime is available.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres-backed test in short mode")
	}

	ctx := context.Background()
	pgContainer, cfg, err := startPostgres(ctx)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	db, err := NewDB(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.RunMigrations(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func generateProfile(twitchID, name string) *models.AccountProfile {
	return &models.AccountProfile{
		TwitchID:    twitchID,
		DisplayName: name,
		SessionID:   uuid.NewString(),
	}
}

func mustAccount(t *testing.T, db *DB, twitchID, name string) *models.Account {
	t.Helper()
	account, err := db.UpsertAccount(context.Background(), generateProfile(twitchID, name))
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}
	return account
}
