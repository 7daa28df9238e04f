package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LoggingMiddleware logs every completion with its latency and usage.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		fields := []zap.Field{
			zap.String("provider", req.Provider),
			zap.String("model", req.Model),
			zap.Int("messages", len(req.Messages)),
			zap.Duration("latency", time.Since(start)),
		}
		if err != nil {
			logger.Warn("llm completion failed", append(fields, zap.Error(err), zap.Bool("retryable", IsRetryable(err)))...)
			return nil, err
		}
		logger.Debug("llm completion",
			append(fields,
				zap.String("response_id", resp.ID),
				zap.Int("input_tokens", resp.Usage.InputTokens),
				zap.Int("output_tokens", resp.Usage.OutputTokens),
			)...)
		return resp, nil
	}
}
