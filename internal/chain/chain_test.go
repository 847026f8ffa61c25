package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"chat2sql-go/internal/llm"
	"chat2sql-go/internal/parser"
	"chat2sql-go/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeOllama(t *testing.T, response string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/generate":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"response": response, "done": true, "prompt_eval_count": 3, "eval_count": 2,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestClient(t *testing.T, baseURL string) *llm.Client {
	t.Helper()
	cfg := llm.DefaultConfig()
	cfg.BaseURL = baseURL
	c, err := llm.New(cfg, llm.DefaultTransportConfig(), nil)
	require.NoError(t, err)
	return c
}

func cleanParser(s string) (string, error) { return parser.Clean(s), nil }

func TestChainInvokeCleanParser(t *testing.T) {
	srv := fakeOllama(t, "<think>ignore</think>The answer is 42.")
	defer srv.Close()

	c := New("Question: {{.Query}}", []string{"Query"}, newTestClient(t, srv.URL), cleanParser)
	out, resp, err := c.Invoke(context.Background(), map[string]any{"Query": "what?"})
	require.NoError(t, err)
	assert.Equal(t, "The answer is 42.", out)
	assert.Equal(t, 5, resp.TotalTokens)
}

func TestChainMissingVariableIsTemplateError(t *testing.T) {
	srv := fakeOllama(t, "irrelevant")
	defer srv.Close()

	c := New("Question: {{.Query}}", []string{"Query"}, newTestClient(t, srv.URL), cleanParser)
	_, _, err := c.Invoke(context.Background(), map[string]any{"Other": "x"})
	require.Error(t, err)
	assert.Equal(t, pipeline.ErrTemplate, pipeline.KindOf(err))
}

func TestChainJSONParser(t *testing.T) {
	srv := fakeOllama(t, "```json\n{\"sql\":\"SELECT 1\"}\n```")
	defer srv.Close()

	c := New("Q: {{.Query}}", []string{"Query"}, newTestClient(t, srv.URL), parser.JSONStruct)
	out, _, err := c.Invoke(context.Background(), map[string]any{"Query": "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"sql":"SELECT 1"}`, out)
}
