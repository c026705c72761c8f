//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/quickeats/internal/domain/identity"
	"github.com/xenking/quickeats/internal/domain/order"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "quickeats",
				"POSTGRES_PASSWORD": "quickeats",
				"POSTGRES_DB":       "quickeats",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() { _ = container.Terminate(context.Background()) }()

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quickeats:quickeats@%s:%s/quickeats?sslmode=disable", host, port.Port())

	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	// Migrations are idempotent.
	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations rerun: %v", err)
	}

	return m.Run()
}

func startListener(t *testing.T) *Listener {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	l := NewListener(testPool, zaptest.NewLogger(t))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx, ChannelOrders, ChannelOwners)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l
}

func TestOrderRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testPool, NewListener(testPool, zap.NewNop()), zap.NewNop())

	id, err := repo.Create(ctx, &order.Order{
		CustomerID:   "u1",
		RestaurantID: "maddur-tiffins",
		Items:        []order.Item{{ItemID: "r1-dosa", UnitPrice: 95, Quantity: 2}},
		TotalAmount:  190,
		Status:       order.StatusConfirmed,
		CreatedAt:    1,
		UpdatedAt:    1,
	})
	require.NoError(t, err)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, int64(190), got.TotalAmount)
	require.Len(t, got.Items, 1)

	status := order.StatusPreparing
	loc := order.Location{Lat: 12.3, Lng: 76.6}
	require.NoError(t, repo.Update(ctx, id, order.Patch{Status: &status, CustomerLocation: &loc, UpdatedAt: 2}))

	got, err = repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPreparing, got.Status)
	assert.Equal(t, int64(2), got.UpdatedAt)
	assert.Equal(t, int64(1), got.CreatedAt)
	assert.Equal(t, "u1", got.CustomerID, "untouched fields survive a patch")
	require.NotNil(t, got.CustomerLocation)

	require.NoError(t, repo.Delete(ctx, id))
	_, err = repo.Get(ctx, id)
	require.ErrorIs(t, err, order.ErrNotFound)
	require.ErrorIs(t, repo.Update(ctx, id, order.Patch{Status: &status}), order.ErrNotFound)
	require.ErrorIs(t, repo.Delete(ctx, id), order.ErrNotFound)
}

func TestOrderRepository_Subscribe(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testPool, startListener(t), zaptest.NewLogger(t))

	snapshots := make(chan []order.Order, 16)
	cancel, err := repo.Subscribe(ctx, func(orders []order.Order) { snapshots <- orders })
	require.NoError(t, err)
	defer cancel()

	<-snapshots

	// Give the listener a moment to issue LISTEN.
	require.Eventually(t, func() bool {
		id, err := repo.Create(ctx, &order.Order{Status: order.StatusConfirmed, CreatedAt: time.Now().UnixMilli()})
		if err != nil {
			return false
		}
		select {
		case got := <-snapshots:
			_, ok := order.Find(got, id)
			return ok
		case <-time.After(500 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 100*time.Millisecond)
}

func TestOrderRepository_SubscribeCancelled(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	repo := NewOrderRepository(testPool, startListener(t), zaptest.NewLogger(t))

	snapshots := make(chan []order.Order, 16)
	_, err := repo.Subscribe(ctx, func(orders []order.Order) { snapshots <- orders })
	require.NoError(t, err)
	<-snapshots
	cancelCtx()

	_, err = repo.Create(context.Background(), &order.Order{Status: order.StatusConfirmed, CreatedAt: time.Now().UnixMilli()})
	require.NoError(t, err)

	select {
	case <-snapshots:
		t.Fatal("snapshot delivered after the context was cancelled")
	case <-time.After(time.Second):
	}
}

func TestProfileRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewProfileRepository(testPool)

	_, err := repo.Get(ctx, "integration-u1")
	require.ErrorIs(t, err, identity.ErrNotFound)

	created, err := repo.CreateIfAbsent(ctx, identity.Profile{UID: "integration-u1", Role: identity.RoleBusiness})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = repo.CreateIfAbsent(ctx, identity.Profile{UID: "integration-u1", Role: identity.RoleCustomer})
	require.NoError(t, err)
	assert.False(t, created)

	p, err := repo.Get(ctx, "integration-u1")
	require.NoError(t, err)
	assert.Equal(t, identity.RoleBusiness, p.Role)
}

func TestOwnerRepository(t *testing.T) {
	ctx := context.Background()
	owners := NewOwnerRepository(testPool, startListener(t), zaptest.NewLogger(t))
	users := NewBusinessUserRepository(testPool)

	require.NoError(t, users.Add(ctx, "Owner@Maddur.in"))
	require.NoError(t, users.Add(ctx, "owner@maddur.in"))
	ok, err := users.Exists(ctx, "OWNER@maddur.in")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, owners.Assign(ctx, "maddur-tiffins", "someone@else.in"))
	require.NoError(t, owners.Assign(ctx, "maddur-tiffins", "owner@maddur.in"))

	m, err := owners.Assignments(ctx)
	require.NoError(t, err)
	assert.Equal(t, "owner@maddur.in", m["maddur-tiffins"])
}
