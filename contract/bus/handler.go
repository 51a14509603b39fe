package bus

import "context"

// QueryHandler handles queries of type Q and returns a result of type R.
// Implementations must be safe for concurrent use by multiple goroutines.
type QueryHandler[Q Query, R any] interface {
	Handle(ctx context.Context, q Q) (R, error)
}

// QueryHandlerFunc adapts a plain function to QueryHandler.
type QueryHandlerFunc[Q Query, R any] func(ctx context.Context, q Q) (R, error)

func (f QueryHandlerFunc[Q, R]) Handle(ctx context.Context, q Q) (R, error) { return f(ctx, q) }
