package llm

import "context"

// Provider is the interface every model backend implements.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string

	// Complete sends a blocking request and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Closer is implemented by providers that hold resources.
type Closer interface {
	Close() error
}
