package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type decision struct {
	Rationale string   `json:"rationale" jsonschema:"description=why"`
	Command   string   `json:"command"`
	Args      []string `json:"args"`
}

func noRetry() *RetryPolicy {
	p := RetryPolicy{MaxRetries: 0}
	return &p
}

func TestGenerate(t *testing.T) {
	fake := newFakeProvider("test", "a summary")
	client := NewClient(WithProvider(fake))

	resp, err := Generate(context.Background(), client, GenerateOptions{
		Model:  "m",
		System: "be brief",
		Prompt: "summarize this",
		Retry:  noRetry(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "a summary" {
		t.Errorf("unexpected text %q", resp.Text)
	}

	req := fake.requests[0]
	if len(req.Messages) != 2 {
		t.Fatalf("expected system + user message, got %d", len(req.Messages))
	}
	if req.Messages[0].Role != RoleSystem || req.Messages[0].Content != "be brief" {
		t.Errorf("unexpected system message: %+v", req.Messages[0])
	}
	if req.Messages[1].Role != RoleUser || req.Messages[1].Content != "summarize this" {
		t.Errorf("unexpected user message: %+v", req.Messages[1])
	}
	if req.ResponseFormat != nil {
		t.Error("plain generation should not request a response format")
	}
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	fake := &fakeProvider{
		name:    "test",
		replies: []string{"", "ok"},
		errs:    []error{&ServerError{ProviderError: ProviderError{Retryable: true}}},
	}
	client := NewClient(WithProvider(fake))
	policy := fastPolicy(1)

	resp, err := Generate(context.Background(), client, GenerateOptions{Prompt: "hi", Retry: &policy})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "ok" || len(fake.requests) != 2 {
		t.Errorf("expected a retried success, got %q after %d calls", resp.Text, len(fake.requests))
	}
}

func TestGeneratePromptAndMessages(t *testing.T) {
	client := NewClient(WithProvider(newFakeProvider("test", "x")))
	_, err := Generate(context.Background(), client, GenerateOptions{
		Prompt:   "hi",
		Messages: []Message{UserMessage("hello")},
	})
	if _, ok := err.(*ConfigurationError); !ok {
		t.Fatalf("expected ConfigurationError, got %T", err)
	}
}

func TestGenerateNilClient(t *testing.T) {
	_, err := Generate(context.Background(), nil, GenerateOptions{Prompt: "hi"})
	if _, ok := err.(*ConfigurationError); !ok {
		t.Fatalf("expected ConfigurationError, got %T", err)
	}
}

func TestCompleteObject(t *testing.T) {
	fake := newFakeProvider("test", `{"rationale":"start at the search engine","command":"VISIT","args":["google.com"]}`)
	client := NewClient(WithProvider(fake))

	got, resp, err := CompleteObject[decision](context.Background(), client, GenerateOptions{
		System: "you drive a browser",
		Prompt: "objective: find cats",
		Retry:  noRetry(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp == nil {
		t.Fatal("expected response")
	}
	if got.Command != "VISIT" || got.Rationale != "start at the search engine" {
		t.Errorf("unexpected object: %+v", got)
	}
	if len(got.Args) != 1 || got.Args[0] != "google.com" {
		t.Errorf("unexpected args: %v", got.Args)
	}

	req := fake.requests[0]
	if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_schema" {
		t.Fatalf("expected json_schema response format, got %+v", req.ResponseFormat)
	}
	system := req.Messages[0].Content
	if !strings.HasPrefix(system, "you drive a browser") {
		t.Errorf("expected caller system prompt first, got %q", system)
	}
	if !strings.Contains(system, `"rationale"`) {
		t.Errorf("expected schema in system prompt, got %q", system)
	}
}

func TestCompleteObjectFencedReply(t *testing.T) {
	reply := "Sure, here you go:\n```json\n{\"rationale\":\"done\",\"command\":\"COMPLETE\",\"args\":[]}\n```\n"
	client := NewClient(WithProvider(newFakeProvider("test", reply)))

	got, _, err := CompleteObject[decision](context.Background(), client, GenerateOptions{Prompt: "x", Retry: noRetry()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Command != "COMPLETE" || len(got.Args) != 0 {
		t.Errorf("unexpected object: %+v", got)
	}
}

func TestCompleteObjectParseFailure(t *testing.T) {
	client := NewClient(WithProvider(newFakeProvider("test", "I would rather not.")))

	_, resp, err := CompleteObject[decision](context.Background(), client, GenerateOptions{Prompt: "x", Retry: noRetry()})
	var noObj *NoObjectGeneratedError
	if !errors.As(err, &noObj) {
		t.Fatalf("expected NoObjectGeneratedError, got %T", err)
	}
	if resp == nil || resp.Text != "I would rather not." {
		t.Error("expected the raw response alongside the parse error")
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"padded", "  \n{\"a\":1}\n ", `{"a":1}`},
		{"prose", `Answer: {"a":{"b":2}} thanks`, `{"a":{"b":2}}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced no lang", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"no object", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.in); got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
