package llm

import (
	"context"
	"fmt"
	"sync"
)

// Middleware wraps a provider call. It receives the request and the next
// handler in the chain.
type Middleware func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error)

// Client routes requests to registered providers through middleware.
type Client struct {
	providers       map[string]Provider
	defaultProvider string
	middleware      []Middleware
	mu              sync.RWMutex
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider registers a provider under its own name.
func WithProvider(p Provider) ClientOption {
	return func(c *Client) {
		c.providers[p.Name()] = p
	}
}

// WithDefaultProvider sets the provider used when a request names none.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) {
		c.defaultProvider = name
	}
}

// WithMiddleware appends middleware; the first registered runs outermost.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

// NewClient creates a Client. With exactly one provider and no explicit
// default, that provider becomes the default.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		providers: make(map[string]Provider),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.defaultProvider == "" && len(c.providers) == 1 {
		for name := range c.providers {
			c.defaultProvider = name
		}
	}
	return c
}

// RegisterProvider adds a provider after construction.
func (c *Client) RegisterProvider(p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[p.Name()] = p
	if c.defaultProvider == "" {
		c.defaultProvider = p.Name()
	}
}

func (c *Client) resolveProvider(req Request) (Provider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name := req.Provider
	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "no provider specified and no default provider configured",
		}}
	}
	p, ok := c.providers[name]
	if !ok {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("provider %q is not registered", name),
		}}
	}
	return p, nil
}

// Complete sends a blocking request through middleware to the resolved provider.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	p, err := c.resolveProvider(req)
	if err != nil {
		return nil, err
	}
	if req.Provider == "" {
		req.Provider = p.Name()
	}

	handler := func(ctx context.Context, r Request) (*Response, error) {
		return p.Complete(ctx, r)
	}
	for i := len(c.middleware) - 1; i >= 0; i-- {
		mw := c.middleware[i]
		next := handler
		handler = func(ctx context.Context, r Request) (*Response, error) {
			return mw(ctx, r, next)
		}
	}
	return handler(ctx, req)
}

// Close releases resources held by registered providers and returns the
// first error encountered.
func (c *Client) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var firstErr error
	for _, p := range c.providers {
		if closer, ok := p.(Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
