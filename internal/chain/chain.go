// Package chain binds a prompt template, an LLM client, and an output
// parser into a single invokable unit, following the same
// prompts.PromptTemplate binding the teacher's prompt manager used,
// generalised to accept any output parser rather than being tied to
// SQL generation specifically.
package chain

import (
	"context"

	"chat2sql-go/internal/llm"
	"chat2sql-go/internal/pipeline"
	"github.com/tmc/langchaingo/prompts"
)

// Parser turns raw completion text into the caller's desired shape.
// parser.Clean and parser.JSONStruct both satisfy this by wrapping
// their (string, error) / string signature accordingly.
type Parser func(text string) (string, error)

// Chain binds a template with named placeholders to an LLM client and
// a parser.
type Chain struct {
	template *prompts.PromptTemplate
	client   *llm.Client
	parse    Parser
}

// New builds a Chain. templateText uses Go template placeholders
// (e.g. "{{.UserQuery}}"); vars names the placeholders that must be
// supplied on Invoke.
func New(templateText string, vars []string, client *llm.Client, parse Parser) *Chain {
	t := prompts.NewPromptTemplate(templateText, vars)
	return &Chain{template: &t, client: client, parse: parse}
}

// Invoke formats the template with vars, calls the LLM, and applies
// the parser to its completion. A variable missing from vars fails
// fast with a template_error before any LLM call; extra keys in vars
// are ignored by prompts.PromptTemplate.
func (c *Chain) Invoke(ctx context.Context, vars map[string]any) (string, *llm.Response, error) {
	prompt, err := c.template.Format(vars)
	if err != nil {
		return "", nil, pipeline.NewTemplateError("formatting prompt", err)
	}

	resp, err := c.client.Invoke(ctx, prompt)
	if err != nil {
		return "", nil, err
	}

	if c.parse == nil {
		return resp.Text, resp, nil
	}
	parsed, err := c.parse(resp.Text)
	if err != nil {
		return "", resp, err
	}
	return parsed, resp, nil
}
