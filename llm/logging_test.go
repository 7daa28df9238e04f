package llm

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	client := NewClient(
		WithProvider(newFakeProvider("test", "hi")),
		WithMiddleware(LoggingMiddleware(zap.New(core))),
	)

	if _, err := client.Complete(context.Background(), Request{Model: "m"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries := logs.FilterMessage("llm completion").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["provider"] != "test" || fields["model"] != "m" {
		t.Errorf("unexpected fields: %v", fields)
	}
	if fields["output_tokens"] != int64(20) {
		t.Errorf("expected output_tokens=20, got %v", fields["output_tokens"])
	}
}

func TestLoggingMiddlewareError(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	fake := &fakeProvider{name: "test", errs: []error{errors.New("boom")}}
	client := NewClient(WithProvider(fake), WithMiddleware(LoggingMiddleware(zap.New(core))))

	if _, err := client.Complete(context.Background(), Request{}); err == nil {
		t.Fatal("expected error")
	}
	entries := logs.FilterLevelExact(zap.WarnLevel).All()
	if len(entries) != 1 || entries[0].Message != "llm completion failed" {
		t.Fatalf("expected one warning, got %v", entries)
	}
}
