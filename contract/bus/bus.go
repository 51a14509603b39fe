package bus

import "context"

// Bus is the tech-agnostic view of the in-process query mediator. Consumers that only
// ask queries depend on it; binding stays with the concrete servicebus helpers.
type Bus interface {
	Ask(ctx context.Context, query any) (any, error)
}
