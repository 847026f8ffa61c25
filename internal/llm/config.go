// Package llm implements the Ollama-backed completion client shared
// by every stage: a single HTTP contract, a process-wide instance
// cache, and config validation against the ranges the platform
// requires.
package llm

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"chat2sql-go/internal/pipeline"
)

// Config is the immutable-once-constructed configuration for one LLM
// client instance. Field ranges mirror the analytical-report platform
// this engine was distilled from: temperature in [0,2], max_tokens in
// [1,10000], top_p in [0,1], the two penalty terms in [-2,2].
type Config struct {
	ModelName        string
	BaseURL          string
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	Stream           bool
	TimeoutS         int
}

// Validate enforces the numeric ranges from the data model. A field
// out of range is a config_error, not a panic: callers construct
// Config from untrusted env vars or request options.
func (c Config) Validate() error {
	if c.ModelName == "" {
		return pipeline.NewConfigError("model_name must not be empty", nil)
	}
	if c.BaseURL == "" {
		return pipeline.NewConfigError("base_url must not be empty", nil)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return pipeline.NewConfigError(fmt.Sprintf("temperature %.2f out of [0,2]", c.Temperature), nil)
	}
	if c.MaxTokens < 1 || c.MaxTokens > 10000 {
		return pipeline.NewConfigError(fmt.Sprintf("max_tokens %d out of [1,10000]", c.MaxTokens), nil)
	}
	if c.TopP < 0 || c.TopP > 1 {
		return pipeline.NewConfigError(fmt.Sprintf("top_p %.2f out of [0,1]", c.TopP), nil)
	}
	if c.FrequencyPenalty < -2 || c.FrequencyPenalty > 2 {
		return pipeline.NewConfigError(fmt.Sprintf("frequency_penalty %.2f out of [-2,2]", c.FrequencyPenalty), nil)
	}
	if c.PresencePenalty < -2 || c.PresencePenalty > 2 {
		return pipeline.NewConfigError(fmt.Sprintf("presence_penalty %.2f out of [-2,2]", c.PresencePenalty), nil)
	}
	if c.TimeoutS <= 0 {
		return pipeline.NewConfigError(fmt.Sprintf("timeout_s %d must be > 0", c.TimeoutS), nil)
	}
	return nil
}

// Timeout is TimeoutS as a time.Duration. Client.Invoke bounds each
// call, including its rate-limiter wait, by it; Client.Stream is
// bounded only by the caller's context.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutS) * time.Second
}

// WithOverrides returns a copy of c with any non-zero field of patch
// applied over it. Used by UpdateConfig on the client.
func (c Config) WithOverrides(patch Config) Config {
	out := c
	if patch.ModelName != "" {
		out.ModelName = patch.ModelName
	}
	if patch.BaseURL != "" {
		out.BaseURL = patch.BaseURL
	}
	if patch.Temperature != 0 {
		out.Temperature = patch.Temperature
	}
	if patch.MaxTokens != 0 {
		out.MaxTokens = patch.MaxTokens
	}
	if patch.TopP != 0 {
		out.TopP = patch.TopP
	}
	if patch.FrequencyPenalty != 0 {
		out.FrequencyPenalty = patch.FrequencyPenalty
	}
	if patch.PresencePenalty != 0 {
		out.PresencePenalty = patch.PresencePenalty
	}
	if patch.TimeoutS != 0 {
		out.TimeoutS = patch.TimeoutS
	}
	if patch.Stream {
		out.Stream = true
	}
	return out
}

// DefaultConfig returns the platform defaults from the configuration
// surface: model "llama3.2" against a local Ollama instance.
func DefaultConfig() Config {
	return Config{
		ModelName:   "llama3.2",
		BaseURL:     "http://localhost:11434",
		Temperature: 0.1,
		MaxTokens:   2048,
		TopP:        0.9,
		TimeoutS:    30,
	}
}

// LoadConfigFromEnv loads a Config from LLM_* environment variables,
// falling back to DefaultConfig for anything unset. Mirrors the
// provider-config loader the AI module used for its Ollama provider.
func LoadConfigFromEnv() Config {
	c := DefaultConfig()
	c.ModelName = getEnvWithDefault("LLM_MODEL_NAME", c.ModelName)
	c.BaseURL = getEnvWithDefault("LLM_BASE_URL", c.BaseURL)
	c.Temperature = getFloatEnvWithDefault("LLM_TEMPERATURE", c.Temperature)
	c.MaxTokens = getIntEnvWithDefault("LLM_MAX_TOKENS", c.MaxTokens)
	c.TopP = getFloatEnvWithDefault("LLM_TOP_P", c.TopP)
	c.FrequencyPenalty = getFloatEnvWithDefault("LLM_FREQUENCY_PENALTY", c.FrequencyPenalty)
	c.PresencePenalty = getFloatEnvWithDefault("LLM_PRESENCE_PENALTY", c.PresencePenalty)
	c.TimeoutS = getIntEnvWithDefault("LLM_TIMEOUT_S", c.TimeoutS)
	c.Stream = getEnvWithDefault("LLM_STREAM", "false") == "true"
	return c
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

func getFloatEnvWithDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if fv, err := strconv.ParseFloat(v, 64); err == nil {
			return fv
		}
	}
	return defaultValue
}
