package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// DefaultModels holds the model used when a provider is created without one.
var DefaultModels = map[string]string{
	"openai":    "gpt-4o",
	"anthropic": "claude-sonnet-4-5",
	"groq":      "llama-3.3-70b-versatile",
	"ollama":    "llama3.1",
}

// GollmProvider adapts a gollm.LLM to the Provider interface.
type GollmProvider struct {
	provider    string
	model       string
	maxTokens   int
	temperature float64
	llm         gollm.LLM
	mu          sync.Mutex // gollm options are set on the shared LLM per request
}

// GollmOption configures a GollmProvider.
type GollmOption func(*gollmConfig)

type gollmConfig struct {
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithModel sets the default model.
func WithModel(model string) GollmOption {
	return func(c *gollmConfig) {
		c.model = model
	}
}

// WithMaxTokens sets the default completion length.
func WithMaxTokens(n int) GollmOption {
	return func(c *gollmConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) GollmOption {
	return func(c *gollmConfig) {
		c.temperature = t
	}
}

// WithGollmOptions passes extra configuration straight to gollm.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmOption {
	return func(c *gollmConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmProvider creates a provider backed by gollm. An empty apiKey lets
// gollm read the provider's usual environment variable.
func NewGollmProvider(provider, apiKey string, opts ...GollmOption) (*GollmProvider, error) {
	cfg := &gollmConfig{
		maxTokens:   1024,
		temperature: 0.2,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.model == "" {
		cfg.model = DefaultModels[provider]
	}
	if cfg.model == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("no model configured for provider %q", provider),
		}}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(cfg.model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // Retry handles this.
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	l, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gollm LLM for provider %s: %w", provider, err)
	}
	return &GollmProvider{
		provider:    provider,
		model:       cfg.model,
		maxTokens:   cfg.maxTokens,
		temperature: cfg.temperature,
		llm:         l,
	}, nil
}

// Name returns the provider identifier.
func (p *GollmProvider) Name() string {
	return p.provider
}

// Model returns the provider's default model.
func (p *GollmProvider) Model() string {
	return p.model
}

// Complete sends a blocking request and returns the full response. A request
// carrying a JSON schema uses gollm's structured output when the provider
// supports it.
func (p *GollmProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := translateRequest(req)

	p.mu.Lock()
	defer p.mu.Unlock()
	// Options stick to the shared LLM, so every request sets all of them.
	opts := p.callOptions(req)
	p.llm.SetOption("model", opts.model)
	p.llm.SetOption("temperature", opts.temperature)
	p.llm.SetOption("max_tokens", opts.maxTokens)

	var text string
	var err error
	if schema := responseSchema(req); schema != nil && p.llm.SupportsJSONSchema() {
		text, err = p.llm.GenerateWithSchema(ctx, prompt, schema)
	} else {
		text, err = p.llm.Generate(ctx, prompt)
	}
	if err != nil {
		return nil, p.translateError(err)
	}
	return p.buildResponse(req, text), nil
}

type callOptions struct {
	model       string
	temperature float64
	maxTokens   int
}

// callOptions resolves the per-request settings against the provider
// defaults.
func (p *GollmProvider) callOptions(req Request) callOptions {
	opts := callOptions{model: p.model, temperature: p.temperature, maxTokens: p.maxTokens}
	if req.Model != "" {
		opts.model = req.Model
	}
	if req.Temperature != nil {
		opts.temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		opts.maxTokens = *req.MaxTokens
	}
	return opts
}

func responseSchema(req Request) map[string]interface{} {
	if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_schema" {
		return nil
	}
	return req.ResponseFormat.JSONSchema
}

// translateRequest flattens the conversation into a single gollm prompt
// with the system messages hoisted into the system prompt.
func translateRequest(req Request) *gollm.Prompt {
	var system []string
	var parts []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Content)
		case RoleUser:
			parts = append(parts, msg.Content)
		case RoleAssistant:
			if msg.Content != "" {
				parts = append(parts, "[Assistant]: "+msg.Content)
			}
		}
	}

	text := strings.Join(parts, "\n")
	if text == "" {
		text = "Hello"
	}

	var opts []gollm.PromptOption
	if len(system) > 0 {
		opts = append(opts, gollm.WithSystemPrompt(strings.TrimSpace(strings.Join(system, "\n")), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		opts = append(opts, gollm.WithMaxLength(*req.MaxTokens))
	}
	return gollm.NewPrompt(text, opts...)
}

func (p *GollmProvider) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = p.model
	}
	in := estimateTokens(req)
	out := len(text) / 4
	return &Response{
		ID:           "resp_" + uuid.New().String()[:8],
		Model:        model,
		Provider:     p.provider,
		Text:         text,
		FinishReason: FinishReason{Reason: "stop", Raw: "stop"},
		// gollm does not expose usage; estimate from text length.
		Usage: Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
	}
}

// translateError classifies a gollm error by its message.
func (p *GollmProvider) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	pe := ProviderError{SDKError: SDKError{Message: msg, Cause: err}, Provider: p.provider}

	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		pe.StatusCode = 401
		return &AuthenticationError{ProviderError: pe}
	case strings.Contains(lower, "403") || strings.Contains(lower, "forbidden"):
		pe.StatusCode = 403
		return &AccessDeniedError{ProviderError: pe}
	case strings.Contains(lower, "404") || strings.Contains(lower, "not found"):
		pe.StatusCode = 404
		return &NotFoundError{ProviderError: pe}
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		pe.StatusCode = 429
		pe.Retryable = true
		return &RateLimitError{ProviderError: pe}
	case strings.Contains(lower, "context length") || strings.Contains(lower, "too many tokens"):
		pe.StatusCode = 413
		return &ContextLengthError{ProviderError: pe}
	case strings.Contains(lower, "500") || strings.Contains(lower, "internal server"):
		pe.StatusCode = 500
		pe.Retryable = true
		return &ServerError{ProviderError: pe}
	case strings.Contains(lower, "timeout"):
		return &RequestTimeoutError{SDKError: SDKError{Message: msg, Cause: err}}
	case strings.Contains(lower, "content filter") || strings.Contains(lower, "safety"):
		return &ContentFilterError{ProviderError: pe}
	default:
		pe.Retryable = true
		return &pe
	}
}

// estimateTokens gives a rough input token count for a request.
func estimateTokens(req Request) int {
	total := 0
	for _, msg := range req.Messages {
		total += len(msg.Content) / 4
	}
	if total == 0 {
		total = 10
	}
	return total
}
