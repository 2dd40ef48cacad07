package test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/joao-fontenele/marketplace-orderflow/internal/accounts"
	"github.com/joao-fontenele/marketplace-orderflow/internal/domain"
	"github.com/joao-fontenele/marketplace-orderflow/internal/telemetry"
)

type PostgresSetup struct {
	ConnStr string
	cleanup func()
}

func (p *PostgresSetup) Cleanup() {
	p.cleanup()
}

func SetupPostgres(ctx context.Context, t *testing.T) *PostgresSetup {
	t.Helper()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("marketplace"),
		postgres.WithUsername("marketplace"),
		postgres.WithPassword("marketplace"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get connection string: %v", err)
	}

	if err := runMigrations(connStr); err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to run migrations: %v", err)
	}

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	}

	return &PostgresSetup{ConnStr: connStr, cleanup: cleanup}
}

func runMigrations(connStr string) error {
	migrationsPath := getMigrationsPath()

	m, err := migrate.New(migrationsPath, connStr)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func getMigrationsPath() string {
	_, filename, _, _ := runtime.Caller(0)
	testDir := filepath.Dir(filename)
	projectRoot := filepath.Dir(testDir)
	migrationsDir := filepath.Join(projectRoot, "migrations")
	return "file://" + migrationsDir
}

func SetupKafka(ctx context.Context, t *testing.T) ([]string, func()) {
	t.Helper()

	container, err := kafka.Run(ctx,
		"confluentinc/confluent-local:7.8.0",
		kafka.WithClusterID("test-cluster"),
	)
	if err != nil {
		t.Fatalf("failed to start kafka container: %v", err)
	}

	brokers, err := container.Brokers(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get kafka brokers: %v", err)
	}

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers, cleanup
}

// OpenDB opens a traced connection pool against the migrated database.
func OpenDB(ctx context.Context, t *testing.T, connStr string) *sql.DB {
	t.Helper()

	db, err := telemetry.OpenDB(ctx, connStr, 20)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Fixture ids shared by the integration tests.
const (
	BuyerID    = "11111111-1111-4111-8111-111111111111"
	SellerAID  = "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"
	SellerBID  = "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb"
	ProductTea = "c0000000-0000-4000-8000-000000000001"
	ProductPot = "c0000000-0000-4000-8000-000000000002"
)

// Seed inserts a buyer, two sellers and two products offered by them.
func Seed(ctx context.Context, t *testing.T, db *sql.DB) {
	t.Helper()

	repo := accounts.NewRepository(db)
	users := []*domain.Account{
		{ID: BuyerID, Email: "ana@example.com", Name: "Ana", Role: domain.RoleBuyer, IsActive: true,
			Buyer: &domain.BuyerProfile{Address: "Rua A 1", PhoneNumber: "+351900000000"}},
		{ID: SellerAID, Email: "tea@example.com", Name: "Bruno", Role: domain.RoleSeller, IsActive: true,
			Seller: &domain.SellerProfile{ShopName: "Leaf & Co", HeadquartersAddress: "Porto", Status: domain.ApprovalApproved}},
		{ID: SellerBID, Email: "pots@example.com", Name: "Carla", Role: domain.RoleSeller, IsActive: true,
			Seller: &domain.SellerProfile{ShopName: "Clay Works", HeadquartersAddress: "Braga", Status: domain.ApprovalApproved}},
	}
	for _, u := range users {
		if err := repo.Create(ctx, u); err != nil {
			t.Fatalf("failed to seed account %s: %v", u.Email, err)
		}
	}

	stmts := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO products (id, name) VALUES ($1, $2)`, []any{ProductTea, "Green Tea"}},
		{`INSERT INTO products (id, name) VALUES ($1, $2)`, []any{ProductPot, "Teapot"}},
		{`INSERT INTO product_sellers (product_id, seller_id, stock, price) VALUES ($1, $2, $3, $4)`, []any{ProductTea, SellerAID, 10, "4.50"}},
		{`INSERT INTO product_sellers (product_id, seller_id, stock, price) VALUES ($1, $2, $3, $4)`, []any{ProductPot, SellerBID, 3, "30.00"}},
	}
	for _, st := range stmts {
		if _, err := db.ExecContext(ctx, st.query, st.args...); err != nil {
			t.Fatalf("failed to seed catalog: %v", err)
		}
	}
}
