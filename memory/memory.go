// Package memory wires a complete in-process word-frequency setup: an in-memory
// broker plus a bus with the analyzer bound.
package memory

import (
	"log/slog"

	"github.com/next-trace/scg-wordfreq/adapters/inmemory"
	cbus "github.com/next-trace/scg-wordfreq/contract/bus"
	"github.com/next-trace/scg-wordfreq/responder"
)

// New returns a broker usable as both requester and subscriber, and a bus ready to
// hand to responder.New.
func New(logger *slog.Logger) (*inmemory.Broker, cbus.Bus, error) {
	bus, err := responder.NewBus(logger)
	if err != nil {
		return nil, nil, err
	}

	return inmemory.New(), bus, nil
}
