// Package testutil starts throwaway Postgres and Redis containers, the
// former with the schema applied, plus small fixtures for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/safar/go-sql-shop/internal/database"
	"github.com/safar/go-sql-shop/internal/models"
	"github.com/safar/go-sql-shop/internal/store"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MigrationsDir resolves the repository's migrations directory independent
// of the test's working directory.
func MigrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

// SetupDB starts postgres:14-alpine, applies every up migration and returns
// a connection. The container is terminated when the test ends. Skipped
// under -short.
func SetupDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:14-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close database: %v", err)
		}
		if err := postgres.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	if err := database.Ping(ctx, db); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	if _, err := database.Migrate(ctx, db, MigrationsDir(), "up"); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}

// SetupRedis starts redis:7-alpine and returns its address. Skipped under
// -short.
func SetupRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return fmt.Sprintf("%s:%s", host, port.Port())
}

var seq atomic.Int64

func next() int64 { return seq.Add(1) }

func CreateUser(t *testing.T, db *sql.DB, role models.Role) *models.User {
	t.Helper()
	n := next()
	user, err := store.CreateUser(context.Background(), db,
		fmt.Sprintf("user%d@example.com", n), fmt.Sprintf("User %d", n), role)
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return user
}

func CreateProduct(t *testing.T, db *sql.DB) *models.Product {
	t.Helper()
	n := next()
	product, err := store.CreateProduct(context.Background(), db,
		fmt.Sprintf("Product %d", n), fmt.Sprintf("product-%d", n), true)
	if err != nil {
		t.Fatalf("Failed to create product: %v", err)
	}
	return product
}

// CreateVariant adds an active variant with the given price and stock to a
// fresh active product.
func CreateVariant(t *testing.T, db *sql.DB, priceCents int64, stock int) *models.ProductVariant {
	t.Helper()
	product := CreateProduct(t, db)
	size := int(next())
	variant, err := store.CreateVariant(context.Background(), db, product.ID, store.VariantInput{
		SizeML:     &size,
		PriceCents: priceCents,
		StockQty:   stock,
		IsActive:   true,
	})
	if err != nil {
		t.Fatalf("Failed to create variant: %v", err)
	}
	return variant
}

func AddToCart(t *testing.T, db *sql.DB, userID, variantID int64, qty int) {
	t.Helper()
	if _, err := store.AddCartItem(context.Background(), db, userID, variantID, qty); err != nil {
		t.Fatalf("Failed to add cart item: %v", err)
	}
}

func StockOf(t *testing.T, db *sql.DB, variantID int64) int {
	t.Helper()
	variant, err := store.GetVariant(context.Background(), db, variantID)
	if err != nil {
		t.Fatalf("Failed to get variant: %v", err)
	}
	return variant.StockQty
}
