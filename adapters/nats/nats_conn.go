package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	berr "github.com/next-trace/scg-wordfreq/contract/errors"
)

// Concrete NATS connection-backed Conn and constructor.

type Config struct {
	URL           string
	Name          string
	ConnTimeout   time.Duration
	MaxReconnects int
	QueueGroup    string
	Logger        *slog.Logger
}

type natsConn struct{ nc *nats.Conn }

func (c natsConn) Request(ctx context.Context, subject string, data []byte) (*nats.Msg, error) {
	return c.nc.RequestWithContext(ctx, subject, data)
}

func (c natsConn) Publish(subject string, data []byte) error {
	if err := c.nc.Publish(subject, data); err != nil {
		return err
	}

	return c.nc.Flush()
}

func (c natsConn) SubscribeSync(subject, queue string) (Subscription, error) {
	if queue != "" {
		return c.nc.QueueSubscribeSync(subject, queue)
	}

	return c.nc.SubscribeSync(subject)
}

// NewWithNATS creates a real NATS connection and returns an Adapter and a cleanup.
func NewWithNATS(cfg Config) (*Adapter, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("%w: nats url required", berr.ErrConnectFailed)
	}

	nc, err := nats.Connect(cfg.URL, options(cfg)...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: nats connect: %w", berr.ErrConnectFailed, err)
	}

	ad := New(natsConn{nc: nc})
	ad.QueueGroup = cfg.QueueGroup

	cleanup := func() {
		if nc != nil && !nc.IsClosed() {
			_ = nc.Drain() //nolint:errcheck // best-effort shutdown; cannot return error here
			nc.Close()
		}
	}

	return ad, cleanup, nil
}

func options(cfg Config) []nats.Option {
	opts := []nats.Option{}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	if cfg.ConnTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnTimeout))
	}

	if cfg.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}

	if cfg.Logger != nil {
		logger := cfg.Logger
		opts = append(opts,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("nats disconnected", "err", err)
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				logger.Info("nats reconnected", "url", nc.ConnectedUrl())
			}),
			nats.ClosedHandler(func(_ *nats.Conn) {
				logger.Info("nats connection closed")
			}),
		)
	}

	return opts
}
