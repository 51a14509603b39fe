package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	cbus "github.com/next-trace/scg-wordfreq/contract/bus"
	berr "github.com/next-trace/scg-wordfreq/contract/errors"
)

const (
	directReplyTo = "amq.rabbitmq.reply-to"
	contentType   = "application/json"
)

// Channel is the subset of *amqp.Channel used by the adapter.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(
		queue, consumer string,
		autoAck, exclusive, noLocal, noWait bool,
		args amqp.Table,
	) (<-chan amqp.Delivery, error)
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) error
	Close() error
}

// Opener opens a fresh channel on the underlying connection.
type Opener func() (Channel, error)

// Adapter implements cbus.Transport over AMQP channels obtained from Open.
type Adapter struct {
	Open Opener
	// NewID generates correlation ids; defaults to uuid.NewString.
	NewID func() string
}

var _ cbus.Transport = (*Adapter)(nil)

func New(open Opener) *Adapter { return &Adapter{Open: open, NewID: uuid.NewString} }

// Request publishes data to the queue named subject and waits on direct reply-to for
// the delivery carrying the same correlation id.
func (a *Adapter) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	ch, err := a.channel(ctx, berr.ErrRequestFailed, "request")
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	replies, err := ch.Consume(directReplyTo, "", true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq request consume: %w", errors.Join(berr.ErrRequestFailed, err))
	}

	id := a.newID()

	err = ch.PublishWithContext(ctx, "", subject, false, false, amqp.Publishing{
		ContentType:   contentType,
		CorrelationId: id,
		ReplyTo:       directReplyTo,
		Body:          data,
	})
	if err != nil {
		return nil, publishErr(err, berr.ErrRequestFailed, "request")
	}

	for {
		select {
		case d, ok := <-replies:
			if !ok {
				return nil, fmt.Errorf("rabbitmq request %s: %w: reply channel closed", subject, berr.ErrRequestFailed)
			}

			if d.CorrelationId == id {
				return d.Body, nil
			}
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("rabbitmq request %s: %w", subject, errors.Join(berr.ErrNoReply, ctx.Err()))
			}

			return nil, ctx.Err()
		}
	}
}

// Subscribe declares a non-durable queue named subject and consumes from it.
// Several subscribers on the same queue share the load as competing consumers.
func (a *Adapter) Subscribe(ctx context.Context, subject string) (cbus.Source, error) {
	ch, err := a.channel(ctx, berr.ErrSubscribeFailed, "subscribe")
	if err != nil {
		return nil, err
	}

	if _, err := ch.QueueDeclare(subject, false, false, false, false, nil); err != nil {
		_ = ch.Close()

		return nil, fmt.Errorf("rabbitmq declare %s: %w", subject, errors.Join(berr.ErrSubscribeFailed, err))
	}

	deliveries, err := ch.Consume(subject, "", true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()

		return nil, fmt.Errorf("rabbitmq consume %s: %w", subject, errors.Join(berr.ErrSubscribeFailed, err))
	}

	return &source{ch: ch, deliveries: deliveries, subject: subject}, nil
}

func (a *Adapter) channel(ctx context.Context, base error, label string) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if a.Open == nil {
		return nil, fmt.Errorf("rabbitmq %s: %w", label, base)
	}

	ch, err := a.Open()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq %s channel: %w", label, errors.Join(base, err))
	}

	return ch, nil
}

func (a *Adapter) newID() string {
	if a.NewID == nil {
		return uuid.NewString()
	}

	return a.NewID()
}

func publishErr(err, base error, label string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return fmt.Errorf("rabbitmq %s publish: %w", label, errors.Join(base, err))
}

type source struct {
	ch         Channel
	deliveries <-chan amqp.Delivery
	subject    string
}

func (s *source) Next(ctx context.Context) (cbus.Message, error) {
	select {
	case d, ok := <-s.deliveries:
		if !ok {
			return nil, fmt.Errorf("rabbitmq next %s: %w", s.subject, berr.ErrSourceClosed)
		}

		return &message{ch: s.ch, d: d}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *source) Close() error {
	if err := s.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("rabbitmq close %s: %w", s.subject, err)
	}

	return nil
}

type message struct {
	ch      Channel
	d       amqp.Delivery
	replied atomic.Bool
}

func (m *message) Data() []byte { return m.d.Body }

func (m *message) Reply(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if m.d.ReplyTo == "" {
		return fmt.Errorf("rabbitmq reply: %w", berr.ErrNoReplySubject)
	}

	if !m.replied.CompareAndSwap(false, true) {
		return fmt.Errorf("rabbitmq reply: %w", berr.ErrAlreadyReplied)
	}

	err := m.ch.PublishWithContext(ctx, "", m.d.ReplyTo, false, false, amqp.Publishing{
		ContentType:   contentType,
		CorrelationId: m.d.CorrelationId,
		Body:          data,
	})
	if err != nil {
		return publishErr(err, berr.ErrReplyFailed, "reply")
	}

	return nil
}
