package subgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"chat2sql-go/internal/pipeline"
	"chat2sql-go/internal/schema"
	"chat2sql-go/internal/validator"
)

func newSchemaPool(t *testing.T) *pgxpool.Pool {
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

	_, err = pool.Exec(ctx, `CREATE TABLE fact_revenue (id SERIAL PRIMARY KEY, amount NUMERIC(12,2) NOT NULL);`)
	require.NoError(t, err)

	return pool
}

func TestGenerateSQLAcceptsValidCandidate(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"sql": "SELECT id, amount FROM fact_revenue"}
		text, _ := json.Marshal(body)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": string(text), "done": true, "prompt_eval_count": 5, "eval_count": 3,
		})
	}))
	defer srv.Close()

	in := schema.New(newSchemaPool(t), nil)
	g := NewGenerateSQL(testClient(t, srv.URL), in, validator.New(validator.DefaultConfig()), DefaultConfig(), nil)

	state := pipeline.New("show revenue")
	state.Plan = []string{"show revenue by row"}
	state.CurrentPlanIdx = 0

	g.Run(context.Background(), state)

	require.Len(t, state.SQL, 1)
	assert.Equal(t, "SELECT id, amount FROM fact_revenue", state.SQL[0])
	assert.Empty(t, state.SQLError)
	require.NotEmpty(t, state.History)
	assert.Equal(t, "accepted", state.History[len(state.History)-1].Outcome)
}

func TestGenerateSQLExhaustsBudgetOnPersistentlyInvalidSQL(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"sql": "DELETE FROM fact_revenue"}
		text, _ := json.Marshal(body)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": string(text), "done": true, "prompt_eval_count": 5, "eval_count": 3,
		})
	}))
	defer srv.Close()

	in := schema.New(newSchemaPool(t), nil)
	cfg := DefaultConfig()
	cfg.RetryBudget = 1
	g := NewGenerateSQL(testClient(t, srv.URL), in, validator.New(validator.DefaultConfig()), cfg, nil)

	state := pipeline.New("delete everything")
	state.Plan = []string{"delete everything"}
	state.CurrentPlanIdx = 0

	g.Run(context.Background(), state)

	assert.Empty(t, state.SQL)
	assert.NotEmpty(t, state.SQLError)
	require.NotEmpty(t, state.History)
	assert.Equal(t, "budget_exhausted", state.History[len(state.History)-1].Outcome)
}
