package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// GenerateOptions configures Generate and CompleteObject.
type GenerateOptions struct {
	Model       string
	Provider    string
	System      string
	Prompt      string    // mutually exclusive with Messages
	Messages    []Message // mutually exclusive with Prompt
	Temperature *float64
	MaxTokens   *int
	Retry       *RetryPolicy // nil uses DefaultRetryPolicy
}

// Generate performs a text completion with retries.
func Generate(ctx context.Context, client *Client, opts GenerateOptions) (*Response, error) {
	return generate(ctx, client, opts, nil)
}

func generate(ctx context.Context, client *Client, opts GenerateOptions, format *ResponseFormat) (*Response, error) {
	if client == nil {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "no client configured"}}
	}
	if opts.Prompt != "" && len(opts.Messages) > 0 {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "cannot specify both prompt and messages",
		}}
	}

	messages := opts.Messages
	if opts.Prompt != "" {
		messages = []Message{UserMessage(opts.Prompt)}
	}
	if opts.System != "" {
		messages = append([]Message{SystemMessage(opts.System)}, messages...)
	}

	policy := DefaultRetryPolicy()
	if opts.Retry != nil {
		policy = *opts.Retry
	}

	req := Request{
		Model:          opts.Model,
		Messages:       messages,
		Provider:       opts.Provider,
		ResponseFormat: format,
		Temperature:    opts.Temperature,
		MaxTokens:      opts.MaxTokens,
	}
	return Retry(ctx, policy, func(ctx context.Context) (*Response, error) {
		return client.Complete(ctx, req)
	})
}

// CompleteObject asks for JSON conforming to the schema of T and decodes it.
// The schema is spelled out in the system prompt and also sent as the
// response format, which providers with native structured output enforce.
func CompleteObject[T any](ctx context.Context, client *Client, opts GenerateOptions) (T, *Response, error) {
	var out T
	schema, err := SchemaFor[T]()
	if err != nil {
		return out, nil, err
	}

	schemaJSON, _ := json.MarshalIndent(schema, "", "  ")
	instruction := fmt.Sprintf(
		"You must respond with valid JSON matching this schema:\n```json\n%s\n```\nRespond ONLY with the JSON object, no other text.",
		string(schemaJSON),
	)
	if opts.System != "" {
		opts.System += "\n\n" + instruction
	} else {
		opts.System = instruction
	}

	resp, err := generate(ctx, client, opts, &ResponseFormat{
		Type:       "json_schema",
		JSONSchema: schema,
		Strict:     true,
	})
	if err != nil {
		return out, nil, err
	}

	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &out); err != nil {
		return out, resp, &NoObjectGeneratedError{SDKError: SDKError{
			Message: "failed to parse structured output",
			Cause:   err,
		}}
	}
	return out, resp, nil
}

// extractJSON strips code fences and surrounding prose from a model reply,
// returning the outermost JSON object.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if start := strings.Index(text, "```"); start != -1 {
		body := text[start+3:]
		if nl := strings.IndexByte(body, '\n'); nl != -1 {
			body = body[nl+1:]
		}
		if end := strings.Index(body, "```"); end != -1 {
			body = body[:end]
		}
		text = strings.TrimSpace(body)
	}
	first := strings.IndexByte(text, '{')
	last := strings.LastIndexByte(text, '}')
	if first == -1 || last < first {
		return text
	}
	return text[first : last+1]
}
