package schema

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
		CREATE TABLE accounts (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL
		);
		CREATE TABLE fact_revenue (
			id SERIAL PRIMARY KEY,
			account_id INT NOT NULL REFERENCES accounts(id),
			amount NUMERIC(12,2) NOT NULL
		);
		INSERT INTO accounts (name) VALUES ('east'), ('west'), ('north');
	`)
	require.NoError(t, err)

	return pool
}

func TestDescribeRendersTablesAndFKHints(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	pool := newTestPool(t)
	in := New(pool, nil)

	md, err := in.Describe(context.Background(), "public", DefaultOptions())
	require.NoError(t, err)
	assert.Contains(t, md, "## public.accounts")
	assert.Contains(t, md, "## public.fact_revenue")
	assert.Contains(t, md, "FK->accounts.id")
	assert.Contains(t, md, "values: 1, 2, 3")
}

func TestDescribeNonexistentSchemaIsEmpty(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	pool := newTestPool(t)
	in := New(pool, nil)

	md, err := in.Describe(context.Background(), "does_not_exist", DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, md)
}

func TestDescribeSingleTableFilter(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	pool := newTestPool(t)
	in := New(pool, nil)

	opts := DefaultOptions()
	opts.Table = "accounts"
	md, err := in.Describe(context.Background(), "public", opts)
	require.NoError(t, err)
	assert.Contains(t, md, "## public.accounts")
	assert.NotContains(t, md, "fact_revenue")
}
