//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresHelper manages the PostgreSQL container for E2E tests.
type PostgresHelper struct {
	T         *testing.T
	Container *tcpostgres.PostgresContainer
	Host      string
	Port      int
	Database  string
	User      string
	Password  string
}

// Shared PostgreSQL container for E2E tests (started once per test run)
var sharedPostgresHelper *PostgresHelper

// NewPostgresHelper returns the shared PostgreSQL helper, starting a
// testcontainer on first use. External PostgreSQL can be supplied via
// POSTGRES_HOST/PORT/DATABASE/USER/PASSWORD instead.
func NewPostgresHelper(t *testing.T) *PostgresHelper {
	t.Helper()

	if sharedPostgresHelper != nil {
		return sharedPostgresHelper
	}

	ctx := context.Background()

	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		port := 5432
		if p := os.Getenv("POSTGRES_PORT"); p != "" {
			_, _ = fmt.Sscanf(p, "%d", &port)
		}
		database := os.Getenv("POSTGRES_DATABASE")
		if database == "" {
			database = "botmesh_e2e"
		}
		user := os.Getenv("POSTGRES_USER")
		if user == "" {
			user = "botmesh"
		}
		password := os.Getenv("POSTGRES_PASSWORD")
		if password == "" {
			password = "botmesh"
		}

		sharedPostgresHelper = &PostgresHelper{
			T:        t,
			Host:     host,
			Port:     port,
			Database: database,
			User:     user,
			Password: password,
		}
		return sharedPostgresHelper
	}

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("botmesh_e2e"),
		tcpostgres.WithUsername("botmesh_e2e"),
		tcpostgres.WithPassword("botmesh_e2e"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get container port: %v", err)
	}

	// NOTE: no t.Cleanup here. The container is shared across subtests;
	// cleanupSharedContainers (and Ryuk as backstop) terminates it after
	// the whole run.
	sharedPostgresHelper = &PostgresHelper{
		T:         t,
		Container: container,
		Host:      host,
		Port:      port.Int(),
		Database:  "botmesh_e2e",
		User:      "botmesh_e2e",
		Password:  "botmesh_e2e",
	}

	return sharedPostgresHelper
}

// ConnectionString returns a PostgreSQL connection string.
func (ph *PostgresHelper) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		ph.User, ph.Password, ph.Host, ph.Port, ph.Database)
}

// TenantstoreSettings returns the plugins.settings overrides that point
// the tenantstore plugin at this database.
func (ph *PostgresHelper) TenantstoreSettings() map[string]any {
	return map[string]any{
		"driver":   "postgres",
		"host":     ph.Host,
		"port":     ph.Port,
		"database": ph.Database,
		"user":     ph.User,
		"password": ph.Password,
		"ssl_mode": "disable",
	}
}

// TruncateTables clears the tenant tables for test isolation when the
// container is reused across tests.
func (ph *PostgresHelper) TruncateTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, ph.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to connect for truncation: %w", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, `TRUNCATE TABLE bots, tenants CASCADE`); err != nil {
		// Tables might not exist yet (first run before migrations)
		return nil
	}

	return nil
}

// QueryRowCount returns the row count of one table, for asserting that
// migrations created the schema.
func (ph *PostgresHelper) QueryRowCount(table string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, ph.ConnectionString())
	if err != nil {
		return 0, fmt.Errorf("failed to connect: %w", err)
	}
	defer pool.Close()

	var count int
	if err := pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
