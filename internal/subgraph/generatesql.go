package subgraph

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"chat2sql-go/internal/chain"
	"chat2sql-go/internal/llm"
	"chat2sql-go/internal/parser"
	"chat2sql-go/internal/pipeline"
	"chat2sql-go/internal/schema"
	"chat2sql-go/internal/validator"
)

const generateSQLTemplate = `You are an expert PostgreSQL analyst. Generate a single read-only SQL statement
that answers the sub-question below, using only the tables and columns described in the
schema. Never use SELECT *; prefer ILIKE for fuzzy text matching; guard division with
NULLIF to avoid division-by-zero.

Schema:
{{.DBStruc}}

{{if .PriorError}}The previous attempt failed validation with this error - fix it:
{{.PriorError}}
{{end}}

Sub-question: {{.SubQuery}}

Respond with a strict JSON object and nothing else: {"sql": "<statement>", "explanation": "<optional>"}.
`

type sqlCandidate struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation,omitempty"`
	Warnings    string `json:"warnings,omitempty"`
}

// GenerateSQL runs the Prepare -> Synthesise -> Validate ->
// (Accept | Repair) -> Terminal state machine for one plan item,
// following the get_knowledge/generate_sql/test/reflect node sequence
// of the teacher's Python subgraph, collapsed into an explicit retry
// loop bounded by a configured budget instead of an open-ended
// LangGraph conditional-edge cycle.
type GenerateSQL struct {
	chain        *chain.Chain
	introspector *schema.Introspector
	validator    *validator.Validator
	retryBudget  int
	schemaName   string
	maxFKValues  int
	logger       *zap.Logger
}

// Config tunes a GenerateSQL stage.
type Config struct {
	RetryBudget int    // default 3
	SchemaName  string // default "public"
	MaxFKValues int    // default 30
}

func DefaultConfig() Config {
	return Config{RetryBudget: 3, SchemaName: "public", MaxFKValues: 30}
}

func NewGenerateSQL(client *llm.Client, introspector *schema.Introspector, v *validator.Validator, cfg Config, logger *zap.Logger) *GenerateSQL {
	if cfg.RetryBudget <= 0 {
		cfg.RetryBudget = 3
	}
	if cfg.SchemaName == "" {
		cfg.SchemaName = "public"
	}
	if cfg.MaxFKValues <= 0 {
		cfg.MaxFKValues = 30
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerateSQL{
		chain:        chain.New(generateSQLTemplate, []string{"DBStruc", "PriorError", "SubQuery"}, client, parser.JSONStruct),
		introspector: introspector,
		validator:    v,
		retryBudget:  cfg.RetryBudget,
		schemaName:   cfg.SchemaName,
		maxFKValues:  cfg.MaxFKValues,
		logger:       logger,
	}
}

// Run drives the state machine for plan[state.CurrentPlanIdx]. On
// Accept, sql is appended at state.CurrentPlanIdx and history records
// the token cost. On budget exhaustion, sql[current_plan_idx] is left
// unset, sql_error carries the last validator message, and a
// budget_exhausted history entry is recorded; the caller (C9) decides
// whether to skip this plan item or abort.
func (g *GenerateSQL) Run(ctx context.Context, state *pipeline.State) {
	subQuery := state.Plan[state.CurrentPlanIdx]

	// Prepare
	if state.DBStruc == "" {
		md, err := g.introspector.Describe(ctx, g.schemaName, schemaOptions(g.maxFKValues))
		if err != nil {
			state.SQLError = err.Error()
			state.AppendHistory("generate_sql", "db_error", err.Error(), 0, 0)
			return
		}
		state.DBStruc = md
	}
	state.RetriesRemaining = g.retryBudget
	state.SQLError = ""

	for {
		// Synthesise
		text, resp, err := g.chain.Invoke(ctx, map[string]any{
			"DBStruc":    state.DBStruc,
			"PriorError": state.SQLError,
			"SubQuery":   subQuery,
		})
		promptTokens, completionTokens := 0, 0
		if resp != nil {
			promptTokens, completionTokens = resp.PromptTokens, resp.CompletionTokens
		}

		if err != nil {
			kind := pipeline.KindOf(err)
			if kind == "" {
				kind = pipeline.ErrLLM
			}
			if !g.repair(state, kind, err.Error(), promptTokens, completionTokens) {
				g.terminalFailure(state, promptTokens, completionTokens)
				return
			}
			continue
		}

		var candidate sqlCandidate
		if err := json.Unmarshal([]byte(text), &candidate); err != nil || candidate.SQL == "" {
			if !g.repair(state, pipeline.ErrParse, "could not parse a sql candidate from the model response", promptTokens, completionTokens) {
				g.terminalFailure(state, promptTokens, completionTokens)
				return
			}
			continue
		}

		// Validate
		if err := g.validator.Validate(candidate.SQL); err != nil {
			if !g.repair(state, pipeline.ErrValidation, err.Error(), promptTokens, completionTokens) {
				g.terminalFailure(state, promptTokens, completionTokens)
				return
			}
			continue
		}

		// Accept
		state.SQL = append(state.SQL, candidate.SQL)
		state.SQLError = ""
		state.AppendHistory("generate_sql", "accepted", candidate.Explanation, promptTokens, completionTokens)
		return
	}
}

// repair records the recoverable failure as a history entry and as
// sql_error for the next Synthesise prompt, then decrements the retry
// budget. It returns false when the budget is exhausted, at which
// point the caller must terminate instead of looping back.
func (g *GenerateSQL) repair(state *pipeline.State, kind pipeline.ErrorKind, reason string, promptTokens, completionTokens int) bool {
	state.SQLError = reason
	state.AppendHistory("generate_sql", string(kind), reason, promptTokens, completionTokens)
	if state.RetriesRemaining <= 0 {
		return false
	}
	state.RetriesRemaining--
	return true
}

func (g *GenerateSQL) terminalFailure(state *pipeline.State, promptTokens, completionTokens int) {
	g.logger.Warn("generate_sql exhausted retry budget", zap.String("error", state.SQLError))
	state.AppendHistory("generate_sql", "budget_exhausted", state.SQLError, promptTokens, completionTokens)
}

func schemaOptions(maxFKValues int) schema.Options {
	opts := schema.DefaultOptions()
	opts.MaxFKValues = maxFKValues
	return opts
}
