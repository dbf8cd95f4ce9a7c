package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/imwg-risk-server/internal/database"
	"github.com/imwg-risk-server/internal/domain"
)

func setupTestDB(t *testing.T) *database.PostgresPool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	url, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	runner, err := database.NewMigrationRunner(url, quietLogger())
	require.NoError(t, err)
	defer runner.Close()
	require.NoError(t, runner.Up(ctx))

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	db, err := database.OpenPostgres(ctx, domain.DatabaseConfig{
		Host:         host,
		Port:         port.Int(),
		Database:     "testdb",
		Username:     "testuser",
		Password:     "testpass",
		MaxOpenConns: 5,
		SSLMode:      "disable",
	}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestPostgresRepository(t *testing.T) {
	db := setupTestDB(t)

	runRepositoryContract(t, func(t *testing.T) domain.AssessmentRepository {
		_, err := db.Pool.Exec(context.Background(), `TRUNCATE assessments, risk_calculations`)
		require.NoError(t, err)
		return NewPostgresRepository(db.Pool, quietLogger())
	})
}
