package bus

import "context"

// Requester sends a single request on a subject and blocks until the correlated reply
// arrives or ctx is done. Implementations report a missing reply (deadline or no
// responders) as an error wrapping errors.ErrNoReply.
type Requester interface {
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
}

// Subscriber opens a message source on a subject. The source stays open until it is
// closed or the underlying connection is lost.
type Subscriber interface {
	Subscribe(ctx context.Context, subject string) (Source, error)
}

// Transport is a convenience interface that combines both sides of a request/reply
// exchange. Any adapter that implements Requester and Subscriber can be handed to
// either the requester or the responder.
//
// This keeps both roles decoupled from concrete transports (NATS, RabbitMQ, Kafka,
// in-memory, etc.).
type Transport interface {
	Requester
	Subscriber
}
