package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat2sql-go/internal/llm"
	"chat2sql-go/internal/pipeline"
)

func fakeReportServer(t *testing.T, response string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody map[string]any
		_ = json.NewDecoder(r.Body).Decode(&reqBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": response, "done": true, "prompt_eval_count": 10, "eval_count": 40,
		})
	}))
}

func TestGenerateProducesReport(t *testing.T) {
	srv := fakeReportServer(t, "## Overview\nRevenue grew.\n## Key Indicators\n...\n## Trends\n...\n## Risks\n...\n## Recommendations\n...")
	defer srv.Close()

	base := llm.DefaultConfig()
	base.BaseURL = srv.URL
	g, err := New(base, DefaultConfig(), llm.DefaultTransportConfig(), nil)
	require.NoError(t, err)

	state := pipeline.New("how did revenue trend this year")
	state.MD = "| account | amount |\n| --- |\n| a | 1 |\n"

	g.Run(context.Background(), state)

	assert.Contains(t, state.Report, "Overview")
	require.NotEmpty(t, state.History)
	assert.Equal(t, "success", state.History[len(state.History)-1].Outcome)
}

func TestGenerateOnFailureLeavesReportUnset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	base := llm.DefaultConfig()
	base.BaseURL = srv.URL
	base.TimeoutS = 2
	g, err := New(base, DefaultConfig(), llm.DefaultTransportConfig(), nil)
	require.NoError(t, err)

	state := pipeline.New("q")
	state.MD = "some table"

	g.Run(context.Background(), state)

	assert.Empty(t, state.Report)
	require.NotEmpty(t, state.History)
	assert.NotEqual(t, "success", state.History[len(state.History)-1].Outcome)
}
