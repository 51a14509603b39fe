package bus

import "context"

// Query is a marker interface for queries. Queries are handled synchronously and must not change state.
type Query interface{}

// Message is one inbound delivery taken from a Source.
// Data may be empty when the transport delivered no payload.
type Message interface {
	Data() []byte
	// Reply sends data back on the message's reply channel. Correlation with the
	// original request is the transport's job.
	Reply(ctx context.Context, data []byte) error
}

// Source yields inbound messages one at a time.
//
// Next blocks until a message is available or ctx is done. It returns ctx.Err() on
// cancellation and an error wrapping errors.ErrSourceClosed once the subscription can
// no longer deliver. Implementations must be safe for a single consuming goroutine.
type Source interface {
	Next(ctx context.Context) (Message, error)
	Close() error
}
