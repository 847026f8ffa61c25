package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"chat2sql-go/internal/pipeline"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Response is the LLM Response shape from the data model: one
// completion plus its accounting.
type Response struct {
	RequestID        string
	ModelName        string
	Prompt           string
	Text             string
	Err              error
	Duration         time.Duration
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// generateRequest is the literal Ollama /api/generate wire request.
type generateRequest struct {
	Model   string            `json:"model"`
	Prompt  string            `json:"prompt"`
	Stream  bool              `json:"stream"`
	Options generateReqOptions `json:"options"`
}

type generateReqOptions struct {
	Temperature      float64 `json:"temperature"`
	NumPredict       int     `json:"num_predict"`
	TopP             float64 `json:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64 `json:"presence_penalty,omitempty"`
}

// generateResponse is the literal Ollama /api/generate wire response,
// for both the non-streaming body and each newline-delimited chunk of
// a streaming body.
type generateResponse struct {
	Response        string `json:"response"`
	Done             bool  `json:"done"`
	PromptEvalCount  int   `json:"prompt_eval_count"`
	EvalCount        int   `json:"eval_count"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Client is a single named LLM backend connection: one Config, one
// HTTP transport, one optional rate limiter. It satisfies the C1
// contract directly (Invoke/Stream/ListModels/ValidateConnection/
// UpdateConfig); the per-key instance cache lives in cache.go.
type Client struct {
	config  Config
	http    *http.Client
	limiter ratelimiter
	logger  *zap.Logger
}

// ratelimiter is satisfied directly by *rate.Limiter; kept as an
// interface so tests can swap in a no-op without constructing one.
type ratelimiter interface {
	Wait(ctx context.Context) error
}

// New constructs a Client for cfg. cfg is validated; an invalid
// config yields a config_error rather than a later runtime failure.
func New(cfg Config, tc TransportConfig, logger *zap.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var rl ratelimiter
	if lim := newLimiter(tc.RequestsPerSecond); lim != nil {
		rl = lim
	}
	return &Client{
		config:  cfg,
		http:    newHTTPClient(tc),
		limiter: rl,
		logger:  logger,
	}, nil
}

// Config returns the client's current configuration.
func (c *Client) Config() Config { return c.config }

// UpdateConfig applies patch over the current config in place. Only
// non-zero fields of patch are applied (see Config.WithOverrides).
func (c *Client) UpdateConfig(patch Config) error {
	next := c.config.WithOverrides(patch)
	if err := next.Validate(); err != nil {
		return err
	}
	c.config = next
	return nil
}

// Invoke performs one synchronous, non-streaming completion.
// Network failures, non-2xx status, and timeouts all surface as
// llm_error, distinct from a config_error on malformed input.
func (c *Client) Invoke(ctx context.Context, prompt string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout())
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, pipeline.NewLLMError("rate limiter wait", err)
		}
	}

	start := time.Now()
	reqID := uuid.NewString()

	body := generateRequest{
		Model:  c.config.ModelName,
		Prompt: prompt,
		Stream: false,
		Options: generateReqOptions{
			Temperature:      c.config.Temperature,
			NumPredict:       c.config.MaxTokens,
			TopP:             c.config.TopP,
			FrequencyPenalty: c.config.FrequencyPenalty,
			PresencePenalty:  c.config.PresencePenalty,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, pipeline.NewConfigError("marshalling generate request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, pipeline.NewLLMError("building generate request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, pipeline.NewLLMError("calling "+c.config.BaseURL+"/api/generate", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return nil, pipeline.NewLLMError(fmt.Sprintf("ollama returned %d: %s", resp.StatusCode, string(data)), nil)
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, pipeline.NewLLMError("decoding generate response", err)
	}

	return &Response{
		RequestID:        reqID,
		ModelName:        c.config.ModelName,
		Prompt:           prompt,
		Text:             gr.Response,
		Duration:         time.Since(start),
		PromptTokens:     gr.PromptEvalCount,
		CompletionTokens: gr.EvalCount,
		TotalTokens:      gr.PromptEvalCount + gr.EvalCount,
	}, nil
}

// Chunk is one fragment of a streaming completion.
type Chunk struct {
	Text string
	Done bool
}

// Stream performs a streaming completion and returns a channel of
// Chunk. The channel is closed when the server signals done or the
// context is cancelled; cancelling ctx closes the underlying response
// body, releasing the connection as required by the finite-lazy-
// sequence contract. The returned error channel carries at most one
// error, sent before the chunk channel closes.
func (c *Client) Stream(ctx context.Context, prompt string) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				errs <- pipeline.NewLLMError("rate limiter wait", err)
				return
			}
		}

		body := generateRequest{
			Model:  c.config.ModelName,
			Prompt: prompt,
			Stream: true,
			Options: generateReqOptions{
				Temperature:      c.config.Temperature,
				NumPredict:       c.config.MaxTokens,
				TopP:             c.config.TopP,
				FrequencyPenalty: c.config.FrequencyPenalty,
				PresencePenalty:  c.config.PresencePenalty,
			},
		}
		payload, err := json.Marshal(body)
		if err != nil {
			errs <- pipeline.NewConfigError("marshalling generate request", err)
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/generate", bytes.NewReader(payload))
		if err != nil {
			errs <- pipeline.NewLLMError("building generate request", err)
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(httpReq)
		if err != nil {
			errs <- pipeline.NewLLMError("calling "+c.config.BaseURL+"/api/generate", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			data, _ := io.ReadAll(resp.Body)
			errs <- pipeline.NewLLMError(fmt.Sprintf("ollama returned %d: %s", resp.StatusCode, string(data)), nil)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}
			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var gr generateResponse
			if err := json.Unmarshal(line, &gr); err != nil {
				errs <- pipeline.NewLLMError("decoding stream chunk", err)
				return
			}
			select {
			case chunks <- Chunk{Text: gr.Response, Done: gr.Done}:
			case <-ctx.Done():
				return
			}
			if gr.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- pipeline.NewLLMError("reading stream body", err)
		}
	}()

	return chunks, errs
}

// ListModels returns the model names the backend reports via
// GET /api/tags.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, pipeline.NewLLMError("building tags request", err)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, pipeline.NewLLMError("calling "+c.config.BaseURL+"/api/tags", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, pipeline.NewLLMError(fmt.Sprintf("ollama tags returned %d", resp.StatusCode), nil)
	}

	var tr tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, pipeline.NewLLMError("decoding tags response", err)
	}
	names := make([]string, 0, len(tr.Models))
	for _, m := range tr.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// ValidateConnection confirms the backend is reachable and serving
// the configured base URL, following the source's connection check.
func (c *Client) ValidateConnection(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.ListModels(checkCtx)
	if err != nil {
		c.logger.Warn("llm connection validation failed", zap.Error(err))
		return false
	}
	return true
}
