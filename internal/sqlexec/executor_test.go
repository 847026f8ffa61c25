package sqlexec

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
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
		CREATE TABLE fact_revenue (id SERIAL PRIMARY KEY, amount NUMERIC(12,2) NOT NULL);
		INSERT INTO fact_revenue (amount) VALUES (100.50), (200.25);
	`)
	require.NoError(t, err)

	return pool
}

func TestExecuteReadReturnsRowsAndColumns(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	exec := New(newTestPool(t), nil)

	blocks, err := exec.ExecuteRead(context.Background(), []string{"SELECT id, amount FROM fact_revenue ORDER BY id"})
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, []string{"id", "amount"}, blocks[0].Columns)
	assert.Equal(t, 2, blocks[0].RowCount)
	assert.Empty(t, blocks[0].Error)

	// amount is NUMERIC(12,2); it must come back as a plain decimal
	// string, not a raw pgtype.Numeric struct dump.
	assert.Equal(t, "100.50", blocks[0].Rows[0][1])
	assert.Equal(t, "200.25", blocks[0].Rows[1][1])
}

func TestFormatNumericHandlesFractionsAndScale(t *testing.T) {
	cases := []struct {
		digits string
		exp    int32
		want   string
	}{
		{"12345", -2, "123.45"},
		{"5", -3, "0.005"},
		{"-1234", -2, "-12.34"},
		{"123", 2, "12300"},
	}
	for _, c := range cases {
		coeff, ok := new(big.Int).SetString(c.digits, 10)
		require.True(t, ok)
		got := FormatNumeric(pgtype.Numeric{Int: coeff, Exp: c.exp, Valid: true})
		assert.Equal(t, c.want, got)
	}
}

func TestFormatNumericHandlesSpecialValues(t *testing.T) {
	assert.Equal(t, "NaN", FormatNumeric(pgtype.Numeric{Valid: true, NaN: true}))
	assert.Equal(t, "", FormatNumeric(pgtype.Numeric{Valid: false}))
	assert.Equal(t, "Infinity", FormatNumeric(pgtype.Numeric{Valid: true, InfinityModifier: pgtype.Infinity}))
}

func TestExecuteReadPartialFailureDoesNotAbortBatch(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	exec := New(newTestPool(t), nil)

	blocks, err := exec.ExecuteRead(context.Background(), []string{
		"SELECT id FROM fact_revenue ORDER BY id",
		"SELECT * FROM does_not_exist",
	})
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Empty(t, blocks[0].Error)
	assert.NotEmpty(t, blocks[1].Error)
	assert.Equal(t, 1, blocks[1].SQLIndex)
}

func TestExecuteReadRejectsWrites(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	exec := New(newTestPool(t), nil)

	blocks, err := exec.ExecuteRead(context.Background(), []string{"DELETE FROM fact_revenue"})
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.NotEmpty(t, blocks[0].Error)
}
