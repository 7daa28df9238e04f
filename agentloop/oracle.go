package agentloop

import (
	"context"
	"fmt"

	"github.com/martinemde/webpilot/llm"
)

// Reply is the oracle's decision for one turn.
type Reply struct {
	Rationale string   `json:"rationale" jsonschema:"description=The rationale behind the command in under 30 words"`
	Command   string   `json:"command" jsonschema:"description=The command to execute such as VISIT or CLICK or COMPLETE"`
	Args      []string `json:"args" jsonschema:"description=Arguments for the command. Empty when the command takes none. TEXT arguments are not split into words"`
}

// Oracle decides the next action from a system instruction and the turn
// prompt.
type Oracle interface {
	Decide(ctx context.Context, system, prompt string) (*Reply, error)
}

// LLMOracle asks a language model for a structured Reply.
type LLMOracle struct {
	client      *llm.Client
	model       string
	provider    string
	temperature *float64
	retry       *llm.RetryPolicy
}

// OracleOption configures an LLMOracle.
type OracleOption func(*LLMOracle)

// WithOracleProvider routes requests to a named provider instead of the
// client's default.
func WithOracleProvider(provider string) OracleOption {
	return func(o *LLMOracle) { o.provider = provider }
}

// WithOracleTemperature sets the sampling temperature.
func WithOracleTemperature(t float64) OracleOption {
	return func(o *LLMOracle) { o.temperature = &t }
}

// WithOracleRetry overrides the retry policy for oracle requests.
func WithOracleRetry(policy llm.RetryPolicy) OracleOption {
	return func(o *LLMOracle) { o.retry = &policy }
}

// NewLLMOracle creates an oracle on client. An empty model uses the
// provider's default.
func NewLLMOracle(client *llm.Client, model string, opts ...OracleOption) *LLMOracle {
	o := &LLMOracle{client: client, model: model}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Decide requests one Reply. Any failure, including unparseable output
// after retries, is returned as an error.
func (o *LLMOracle) Decide(ctx context.Context, system, prompt string) (*Reply, error) {
	reply, _, err := llm.CompleteObject[Reply](ctx, o.client, llm.GenerateOptions{
		Model:       o.model,
		Provider:    o.provider,
		System:      system,
		Prompt:      prompt,
		Temperature: o.temperature,
		Retry:       o.retry,
	})
	if err != nil {
		return nil, fmt.Errorf("oracle: %w", err)
	}
	return &reply, nil
}
