// Package transport opens the configured bus adapter.
package transport

import (
	"fmt"
	"log/slog"

	"github.com/next-trace/scg-wordfreq/adapters/kafka"
	"github.com/next-trace/scg-wordfreq/adapters/nats"
	"github.com/next-trace/scg-wordfreq/adapters/rabbitmq"
	"github.com/next-trace/scg-wordfreq/config"
	cbus "github.com/next-trace/scg-wordfreq/contract/bus"
	berr "github.com/next-trace/scg-wordfreq/contract/errors"
)

// Role selects which side of the exchange the connection serves.
type Role int

const (
	RoleRequester Role = iota
	RoleResponder
)

// Open connects the transport named by cfg.Transport. Load-sharing groups (NATS queue
// group, Kafka consumer group) are joined only by responders.
func Open(cfg *config.Config, role Role, logger *slog.Logger) (cbus.Transport, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting", "transport", cfg.Transport)

	switch cfg.Transport {
	case config.TransportNATS:
		c := nats.Config{
			URL:           cfg.NATS.URL,
			Name:          cfg.NATS.Name,
			ConnTimeout:   cfg.NATS.ConnTimeout.Std(),
			MaxReconnects: cfg.NATS.MaxReconnects,
			Logger:        logger,
		}
		if role == RoleResponder {
			c.QueueGroup = cfg.NATS.QueueGroup
		}

		return opened(nats.NewWithNATS(c))
	case config.TransportRabbitMQ:
		return opened(rabbitmq.NewWithAMQPConn(rabbitmq.Config{
			URL:         cfg.RabbitMQ.URL,
			ConnTimeout: cfg.RabbitMQ.ConnTimeout.Std(),
		}))
	case config.TransportKafka:
		tlsCfg, err := cfg.KafkaTLS()
		if err != nil {
			return nil, nil, fmt.Errorf("open transport: %w", err)
		}

		c := kafka.Config{
			Brokers:    cfg.Kafka.Brokers,
			TLS:        tlsCfg,
			ClientID:   cfg.Kafka.ClientID,
			ReplyTopic: cfg.Kafka.ReplyTopic,
		}
		if role == RoleResponder {
			c.Group = cfg.Kafka.Group
		}

		return opened(kafka.NewWithKgo(c))
	default:
		return nil, nil, fmt.Errorf("open transport: %w: unknown transport %q", berr.ErrInvalidConfig, cfg.Transport)
	}
}

// opened keeps a failed constructor's nil adapter from becoming a non-nil interface.
func opened[T cbus.Transport](t T, cleanup func(), err error) (cbus.Transport, func(), error) {
	if err != nil {
		return nil, nil, err
	}

	return t, cleanup, nil
}
