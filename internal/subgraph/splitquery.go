// Package subgraph implements the three cooperating stages that turn
// a natural-language question into executed, tabulated SQL: splitting
// it into single-table sub-queries, synthesising and validating SQL
// for each, and fetching + rendering the results. Each stage is a
// small explicit state machine over pipeline.State, following the
// node-and-edge shape of the teacher's Python LangGraph subgraphs
// re-expressed as plain Go control flow.
package subgraph

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"chat2sql-go/internal/chain"
	"chat2sql-go/internal/llm"
	"chat2sql-go/internal/parser"
	"chat2sql-go/internal/pipeline"
)

const splitQueryTemplate = `You are an expert at translating analytical questions into PostgreSQL queries.
Given the user question below and this set of known analytical tables, decide whether the
question needs to be answered from more than one table. If so, split it into one clear,
single-table sub-question per table; otherwise return the question unchanged, optimised for
a single-table query.

Known tables:
{{.Tables}}

Respond with a strict JSON array of strings and nothing else, e.g. ["sub-question 1", "sub-question 2"].

User question: {{.Query}}
`

// SplitQuery decomposes a user question into an ordered plan of
// single-table sub-queries.
type SplitQuery struct {
	chain        *chain.Chain
	retryBudget  int
	knownTables  string
	logger       *zap.Logger
}

// NewSplitQuery builds a SplitQuery stage. retryBudget is the number
// of extra LLM attempts allowed after a parse failure before the
// stage degrades to the single-element plan [query] (default 2).
// knownTables is a human-readable description of the tables available
// to the downstream SQL generator, folded into the prompt.
func NewSplitQuery(client *llm.Client, retryBudget int, knownTables string, logger *zap.Logger) *SplitQuery {
	if retryBudget < 0 {
		retryBudget = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SplitQuery{
		chain:       chain.New(splitQueryTemplate, []string{"Tables", "Query"}, client, parser.JSONArray),
		retryBudget: retryBudget,
		knownTables: knownTables,
		logger:      logger,
	}
}

// Run executes the single-stage state machine: invoke the LLM,
// JSON-parse the array, retry on parse failure up to retryBudget
// times, and degrade to [query] on persistent failure. Postcondition:
// state.Plan is non-empty and state.CurrentPlanIdx == 0.
func (s *SplitQuery) Run(ctx context.Context, state *pipeline.State) {
	attempts := s.retryBudget + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		text, resp, err := s.chain.Invoke(ctx, map[string]any{
			"Tables": s.knownTables,
			"Query":  state.Query,
		})
		if err != nil {
			lastErr = err
			continue
		}

		var plan []string
		if err := json.Unmarshal([]byte(text), &plan); err != nil || len(plan) == 0 {
			lastErr = pipeline.NewParseError("split_query returned an unparsable plan", err)
			continue
		}

		state.Plan = plan
		state.CurrentPlanIdx = 0
		promptTokens, completionTokens := 0, 0
		if resp != nil {
			promptTokens, completionTokens = resp.PromptTokens, resp.CompletionTokens
		}
		state.AppendHistory("split_query", "success", "", promptTokens, completionTokens)
		return
	}

	s.logger.Warn("split_query degraded to single-item plan", zap.Error(lastErr))
	state.Plan = []string{state.Query}
	state.CurrentPlanIdx = 0
	detail := "degraded to [original_query] after exhausting retry budget"
	if lastErr != nil {
		detail += ": " + lastErr.Error()
	}
	state.AppendHistory("split_query", "degraded", detail, 0, 0)
}
