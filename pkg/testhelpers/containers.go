package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	PostgresImage = "postgres:16-alpine"
	MongoImage    = "mongo:7"

	// FixtureDatabase is the database seeded in both containers.
	FixtureDatabase = "shop"
)

// TestPostgres holds a shared PostgreSQL container seeded with the shop fixture.
type TestPostgres struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
}

// TestMongo holds a shared MongoDB container seeded with the shop fixture.
type TestMongo struct {
	Container testcontainers.Container
	Client    *mongo.Client
	URI       string
}

var (
	sharedPostgres     *TestPostgres
	sharedPostgresOnce sync.Once
	sharedPostgresErr  error

	sharedMongo     *TestMongo
	sharedMongoOnce sync.Once
	sharedMongoErr  error
)

// GetTestPostgres returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestPostgres(t *testing.T) *TestPostgres {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedPostgresOnce.Do(func() {
		sharedPostgres, sharedPostgresErr = setupPostgres()
	})

	if sharedPostgresErr != nil {
		t.Fatalf("Failed to setup test postgres: %v", sharedPostgresErr)
	}

	return sharedPostgres
}

// GetTestMongo returns a shared MongoDB container for integration tests.
func GetTestMongo(t *testing.T) *TestMongo {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedMongoOnce.Do(func() {
		sharedMongo, sharedMongoErr = setupMongo()
	})

	if sharedMongoErr != nil {
		t.Fatalf("Failed to setup test mongo: %v", sharedMongoErr)
	}

	return sharedMongo
}

func startContainer(ctx context.Context, req testcontainers.ContainerRequest, port string) (testcontainers.Container, string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to start %s container: %w", req.Image, err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get container host: %w", err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		return nil, "", fmt.Errorf("failed to get container port: %w", err)
	}
	return container, fmt.Sprintf("%s:%s", host, mapped.Port()), nil
}

func setupPostgres() (*TestPostgres, error) {
	ctx := context.Background()

	container, addr, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       FixtureDatabase,
			"POSTGRES_USER":     "ekaya",
			"POSTGRES_PASSWORD": "test_password",
		},
		// The server restarts once after running init scripts.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432")
	if err != nil {
		return nil, err
	}

	connStr := fmt.Sprintf("postgres://ekaya:test_password@%s/%s?sslmode=disable", addr, FixtureDatabase)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err = pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres did not become reachable: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresFixture); err != nil {
		return nil, fmt.Errorf("failed to seed postgres: %w", err)
	}

	return &TestPostgres{Container: container, Pool: pool, ConnStr: connStr}, nil
}

const postgresFixture = `
CREATE TABLE orders (
	id       integer PRIMARY KEY,
	status   text NOT NULL,
	total    numeric(10, 2),
	placed   timestamptz NOT NULL,
	coupon   text,
	shipping jsonb
);
INSERT INTO orders VALUES
	(1, 'new',  12.50, '2024-03-01T10:00:00Z', NULL,   '{"city": "London", "express": true}'),
	(2, 'paid',  3.00, '2024-03-02T11:30:00Z', 'SAVE5', '{"city": "Paris", "express": false}'),
	(3, 'new',   7.25, '2024-03-03T09:15:00Z', NULL,   NULL);
CREATE VIEW open_orders AS SELECT id, status FROM orders WHERE status = 'new';
`

func setupMongo() (*TestMongo, error) {
	ctx := context.Background()

	container, addr, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        MongoImage,
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor: wait.ForLog("Waiting for connections").
			WithStartupTimeout(60 * time.Second),
	}, "27017")
	if err != nil {
		return nil, err
	}

	uri := fmt.Sprintf("mongodb://%s/%s", addr, FixtureDatabase)
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	orders := client.Database(FixtureDatabase).Collection("orders")
	docs := []any{
		bson.D{{Key: "_id", Value: bson.NewObjectID()}, {Key: "status", Value: "new"}, {Key: "total", Value: 12.5},
			{Key: "placed", Value: bson.NewDateTimeFromTime(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))},
			{Key: "shipping", Value: bson.D{{Key: "city", Value: "London"}}}},
		bson.D{{Key: "_id", Value: bson.NewObjectID()}, {Key: "status", Value: "paid"}, {Key: "total", Value: 3.0},
			{Key: "placed", Value: bson.NewDateTimeFromTime(time.Date(2024, 3, 2, 11, 30, 0, 0, time.UTC))},
			{Key: "shipping", Value: bson.D{{Key: "city", Value: "Paris"}}}, {Key: "coupon", Value: "SAVE5"}},
		bson.D{{Key: "_id", Value: bson.NewObjectID()}, {Key: "status", Value: "new"}, {Key: "total", Value: 7.25},
			{Key: "placed", Value: bson.NewDateTimeFromTime(time.Date(2024, 3, 3, 9, 15, 0, 0, time.UTC))},
			{Key: "coupon", Value: nil}},
	}
	if _, err := orders.InsertMany(ctx, docs); err != nil {
		return nil, fmt.Errorf("failed to seed mongo: %w", err)
	}
	if _, err := client.Database(FixtureDatabase).Collection("customers").
		InsertOne(ctx, bson.D{{Key: "name", Value: "Ada"}}); err != nil {
		return nil, fmt.Errorf("failed to seed mongo: %w", err)
	}

	return &TestMongo{Container: container, Client: client, URI: uri}, nil
}
