// Package report generates the final natural-language analysis report
// from a fetched tabular summary, following the same chain-binding
// shape used by the subgraph package's LLM-backed stages but tuned for
// long-form output instead of a structured parse.
package report

import (
	"context"

	"go.uber.org/zap"

	"chat2sql-go/internal/chain"
	"chat2sql-go/internal/llm"
	"chat2sql-go/internal/parser"
	"chat2sql-go/internal/pipeline"
)

const reportTemplate = `You are a financial analyst. Given the question and the tabular summary
below, produce a structured report in Markdown with exactly these sections, in
this order: Overview, Key Indicators, Trends, Risks, Recommendations.

Question: {{.Query}}

Tabular summary:
{{.MD}}
`

// Generator binds the report prompt to an LLM client tuned for
// long-form output.
type Generator struct {
	chain  *chain.Chain
	logger *zap.Logger
}

// Config tunes the LLM client backing the report generator. Defaults
// favour a long, low-variance completion over the terser JSON-chain
// defaults used elsewhere in the pipeline.
type Config struct {
	MinMaxTokens int     // floor enforced on cfg.MaxTokens; default 2000
	Temperature  float64 // default 0.3
}

func DefaultConfig() Config {
	return Config{MinMaxTokens: 2000, Temperature: 0.3}
}

// New builds a Generator. baseConfig supplies model/base_url/timeout;
// its MaxTokens is raised to at least cfg.MinMaxTokens and its
// Temperature is replaced by cfg.Temperature, so the report
// stage always gets long, low-variance completions regardless of what
// the rest of the pipeline is configured with.
func New(baseConfig llm.Config, cfg Config, transport llm.TransportConfig, logger *zap.Logger) (*Generator, error) {
	if cfg.MinMaxTokens <= 0 {
		cfg.MinMaxTokens = 2000
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	llmCfg := baseConfig
	if llmCfg.MaxTokens < cfg.MinMaxTokens {
		llmCfg.MaxTokens = cfg.MinMaxTokens
	}
	llmCfg.Temperature = cfg.Temperature

	client, err := llm.New(llmCfg, transport, logger)
	if err != nil {
		return nil, err
	}

	return &Generator{
		chain:  chain.New(reportTemplate, []string{"Query", "MD"}, client, cleanParser),
		logger: logger,
	}, nil
}

func cleanParser(text string) (string, error) {
	return parser.Clean(text), nil
}

// Run generates state.Report from state.Query and state.MD. On LLM
// failure, Report is left unset and the error is recorded in History;
// the caller still has a usable partial state.
func (g *Generator) Run(ctx context.Context, state *pipeline.State) {
	text, resp, err := g.chain.Invoke(ctx, map[string]any{
		"Query": state.Query,
		"MD":    state.MD,
	})
	promptTokens, completionTokens := 0, 0
	if resp != nil {
		promptTokens, completionTokens = resp.PromptTokens, resp.CompletionTokens
	}
	if err != nil {
		state.AppendHistory("report", string(pipeline.KindOf(err)), err.Error(), promptTokens, completionTokens)
		return
	}
	state.Report = text
	state.AppendHistory("report", "success", "", promptTokens, completionTokens)
}
