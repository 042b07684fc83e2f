package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/broady/bridge"
)

// LoggingInterceptor creates an interceptor that logs calls using slog.
// It logs the start and end of each call, including duration and error status.
func LoggingInterceptor(logger *slog.Logger) bridge.UnaryInterceptor {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, call *bridge.CallContext, args []any, next bridge.HandlerFunc) (any, error) {
		start := time.Now()
		attrs := []any{
			slog.String("call_id", call.ID),
			slog.String("method", call.EndpointID()),
		}

		logger.DebugContext(ctx, "call started", append(attrs, slog.Int("args", len(args)))...)

		res, err := next(ctx, args)
		attrs = append(attrs, slog.Duration("duration", time.Since(start)))

		if err != nil {
			logger.ErrorContext(ctx, "call failed", append(attrs, slog.Any("error", err))...)
		} else {
			logger.InfoContext(ctx, "call completed", attrs...)
		}

		return res, err
	}
}
