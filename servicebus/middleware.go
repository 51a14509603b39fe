package servicebus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	berr "github.com/next-trace/scg-wordfreq/contract/errors"
)

// Recover turns a panicking handler into an error wrapping errors.ErrHandlerPanic.
func Recover() QueryMiddleware {
	return func(next QueryFunc) QueryFunc {
		return func(ctx context.Context, q any) (res any, err error) {
			defer func() {
				if r := recover(); r != nil {
					res = nil
					err = fmt.Errorf("ask %T: %w: %v", q, berr.ErrHandlerPanic, r)
				}
			}()

			return next(ctx, q)
		}
	}
}

// Logging records each query at debug level with its duration and outcome.
func Logging(logger *slog.Logger) QueryMiddleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next QueryFunc) QueryFunc {
		return func(ctx context.Context, q any) (any, error) {
			start := time.Now()
			res, err := next(ctx, q)
			logger.DebugContext(ctx, "query handled",
				"query", fmt.Sprintf("%T", q),
				"duration", time.Since(start),
				"err", err,
			)

			return res, err
		}
	}
}
