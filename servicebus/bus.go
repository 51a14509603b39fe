package servicebus

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	cbus "github.com/next-trace/scg-wordfreq/contract/bus"
	berr "github.com/next-trace/scg-wordfreq/contract/errors"
)

// Bus is a thin in-process mediator with an internal binder.
// It routes a query value to the single handler bound for its type, through the
// registered query middleware.
//
// Bus is concurrency-safe and contains no global state.
type Bus struct {
	mu sync.RWMutex

	qry map[reflect.Type]QueryFunc

	// global query middleware executed in registration order
	qryMW []QueryMiddleware

	logger *slog.Logger
}

var _ cbus.Bus = (*Bus)(nil)

// QueryFunc is the untyped form of a bound query handler.
type QueryFunc func(ctx context.Context, q any) (any, error)

// QueryMiddleware wraps query handler execution. Middlewares are executed in registration order.
type QueryMiddleware func(next QueryFunc) QueryFunc

// BusOption configures a Bus instance.
type BusOption func(*Bus)

// WithQueryMiddleware registers global query middleware via an option.
func WithQueryMiddleware(mw ...QueryMiddleware) BusOption {
	return func(b *Bus) { b.qryMW = append(b.qryMW, mw...) }
}

// New constructs a new Bus. A nil logger falls back to slog.Default().
func New(logger *slog.Logger, opts ...BusOption) *Bus {
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bus{
		qry:    make(map[reflect.Type]QueryFunc),
		logger: logger,
	}

	for _, o := range opts {
		o(b)
	}

	return b
}

// BindQuery registers a handler for query type Q producing R. Duplicate bindings are rejected.
func BindQuery[Q cbus.Query, R any](b *Bus, h cbus.QueryHandler[Q, R]) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero Q
	t := reflect.TypeOf(zero)

	if _, exists := b.qry[t]; exists {
		return fmt.Errorf("bind query %s: %w", t.String(), berr.ErrHandlerExists)
	}

	b.qry[t] = func(ctx context.Context, v any) (any, error) {
		q, ok := v.(Q)
		if !ok {
			return nil, fmt.Errorf("ask %s: %w", reflect.TypeOf(v).String(), berr.ErrHandlerTypeMismatch)
		}

		return h.Handle(ctx, q)
	}

	return nil
}

// Ask executes a query handler synchronously (with middleware) and returns an untyped result.
func (b *Bus) Ask(ctx context.Context, q any) (any, error) {
	return b.askWithMiddleware(ctx, q)
}

// Ask executes a query on any contract bus and returns the typed result.
func Ask[Q cbus.Query, R any](ctx context.Context, b cbus.Bus, q Q) (R, error) {
	var zero R

	res, err := b.Ask(ctx, q)
	if err != nil {
		return zero, err
	}

	r, ok := res.(R)
	if !ok {
		return zero, fmt.Errorf("ask %s: %w", reflect.TypeOf(q).String(), berr.ErrHandlerTypeMismatch)
	}

	return r, nil
}

func (b *Bus) askWithMiddleware(ctx context.Context, q any) (any, error) {
	t := reflect.TypeOf(q)

	b.mu.RLock()
	f, ok := b.qry[t]
	chain := append([]QueryMiddleware(nil), b.qryMW...)
	b.mu.RUnlock()

	if !ok {
		name := "<nil>"
		if t != nil {
			name = t.String()
		}

		b.logger.WarnContext(ctx, "no handler bound", "query", name)

		return nil, fmt.Errorf("ask %s: %w", name, berr.ErrHandlerNotFound)
	}

	// Build chain so the first registered middleware runs first
	final := f
	for i := len(chain) - 1; i >= 0; i-- {
		final = chain[i](final)
	}

	return final(ctx, q)
}
