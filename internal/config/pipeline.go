package config

import (
	"os"
	"strconv"

	"chat2sql-go/internal/pipeline"
)

// PipelineConfig aggregates the retry budgets and execution-mode flags
// the orchestrator and its subgraphs read at construction time,
// mirroring the pipeline.* configuration keys of the invocation
// surface.
type PipelineConfig struct {
	RetryBudgetSQL      int  `json:"retry_budget_sql"`
	RetryBudgetSplit    int  `json:"retry_budget_split"`
	ParallelPlanSteps   bool `json:"parallel_plan_steps"`
	DeadlineS           int  `json:"deadline_s,omitempty"` // 0 means no deadline
}

// DefaultPipelineConfig returns the documented defaults: 3 SQL repair
// attempts, 2 split-query attempts, sequential plan execution, no
// deadline.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		RetryBudgetSQL:   3,
		RetryBudgetSplit: 2,
	}
}

// LoadPipelineConfigFromEnv loads a PipelineConfig from PIPELINE_*
// environment variables, falling back to DefaultPipelineConfig for
// anything unset.
func LoadPipelineConfigFromEnv() PipelineConfig {
	c := DefaultPipelineConfig()
	c.RetryBudgetSQL = getIntEnvWithDefault("PIPELINE_RETRY_BUDGET_SQL", c.RetryBudgetSQL)
	c.RetryBudgetSplit = getIntEnvWithDefault("PIPELINE_RETRY_BUDGET_SPLIT", c.RetryBudgetSplit)
	c.ParallelPlanSteps = getEnvWithDefault("PIPELINE_PARALLEL_PLAN_STEPS", "false") == "true"
	c.DeadlineS = getIntEnvWithDefault("PIPELINE_DEADLINE_S", c.DeadlineS)
	return c
}

// Validate enforces the numeric ranges the orchestrator and its
// subgraphs assume: non-negative retry budgets, a non-negative
// deadline.
func (c PipelineConfig) Validate() error {
	if c.RetryBudgetSQL < 0 {
		return pipeline.NewConfigError("retry_budget_sql must be >= 0", nil)
	}
	if c.RetryBudgetSplit < 0 {
		return pipeline.NewConfigError("retry_budget_split must be >= 0", nil)
	}
	if c.DeadlineS < 0 {
		return pipeline.NewConfigError("deadline_s must be >= 0", nil)
	}
	return nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntEnvWithDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if iv, err := strconv.Atoi(v); err == nil {
			return iv
		}
	}
	return defaultValue
}
