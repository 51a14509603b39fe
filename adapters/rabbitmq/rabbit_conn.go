package rabbitmq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	berr "github.com/next-trace/scg-wordfreq/contract/errors"
)

// Concrete AMQP connection-backed constructor.

type Config struct {
	URL         string
	ConnTimeout time.Duration
}

// NewWithAMQPConn dials RabbitMQ and returns an Adapter opening channels on that
// connection, plus a cleanup closing it. A lost connection surfaces as a closed
// source; reconnecting is left to the host process.
func NewWithAMQPConn(cfg Config) (*Adapter, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("%w: rabbitmq url required", berr.ErrConnectFailed)
	}

	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Locale:     "en_US",
		Properties: amqp.Table{"product": "scg-wordfreq"},
		Dial:       amqp.DefaultDial(cfg.ConnTimeout),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: rabbitmq dial: %w", berr.ErrConnectFailed, err)
	}

	ad := New(func() (Channel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}

		return ch, nil
	})

	cleanup := func() {
		if !conn.IsClosed() {
			_ = conn.Close()
		}
	}

	return ad, cleanup, nil
}
