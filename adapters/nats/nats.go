package nats

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	cbus "github.com/next-trace/scg-wordfreq/contract/bus"
	berr "github.com/next-trace/scg-wordfreq/contract/errors"
)

// Conn is the minimal slice of a NATS connection used by the adapter.
// The concrete implementation wraps *nats.Conn; tests provide fakes.
type Conn interface {
	// Request publishes data on subject with a unique inbox and waits for one reply.
	Request(ctx context.Context, subject string, data []byte) (*nats.Msg, error)
	// Publish sends data to subject, typically a reply inbox.
	Publish(subject string, data []byte) error
	// SubscribeSync opens a synchronous subscription; a non-empty queue joins a queue group.
	SubscribeSync(subject, queue string) (Subscription, error)
}

// Subscription is satisfied by *nats.Subscription.
type Subscription interface {
	NextMsgWithContext(ctx context.Context) (*nats.Msg, error)
	Unsubscribe() error
}

// Adapter implements cbus.Transport using an injected NATS-like Conn.
type Adapter struct {
	Conn       Conn
	QueueGroup string
}

// Ensure Adapter implements the combined contract.
var _ cbus.Transport = (*Adapter)(nil)

// New creates a new NATS adapter instance with the provided connection.
func New(c Conn) *Adapter { return &Adapter{Conn: c} }

// Request sends data on subject and waits for the correlated reply.
// Timeouts and missing responders are reported as errors.ErrNoReply.
func (a *Adapter) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	if err := a.ready(ctx, berr.ErrRequestFailed, "request"); err != nil {
		return nil, err
	}

	msg, err := a.Conn.Request(ctx, subject, data)
	if err != nil {
		return nil, requestErr(subject, err)
	}

	return msg.Data, nil
}

// Subscribe opens a synchronous subscription on subject, in the adapter's queue group if set.
func (a *Adapter) Subscribe(ctx context.Context, subject string) (cbus.Source, error) {
	if err := a.ready(ctx, berr.ErrSubscribeFailed, "subscribe"); err != nil {
		return nil, err
	}

	sub, err := a.Conn.SubscribeSync(subject, a.QueueGroup)
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, errors.Join(berr.ErrSubscribeFailed, err))
	}

	return &source{conn: a.Conn, sub: sub, subject: subject}, nil
}

func (a *Adapter) ready(ctx context.Context, base error, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Conn == nil {
		return fmt.Errorf("nats %s: %w", label, base)
	}

	return nil
}

func requestErr(subject string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, nats.ErrNoResponders):
		return fmt.Errorf("nats request %s: %w: no responders", subject, berr.ErrNoReply)
	case errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("nats request %s: %w", subject, errors.Join(berr.ErrNoReply, err))
	default:
		return fmt.Errorf("nats request %s: %w", subject, errors.Join(berr.ErrRequestFailed, err))
	}
}

type source struct {
	conn    Conn
	sub     Subscription
	subject string
}

func (s *source) Next(ctx context.Context) (cbus.Message, error) {
	for {
		msg, err := s.sub.NextMsgWithContext(ctx)
		if err == nil {
			return &message{conn: s.conn, msg: msg}, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		// the client already dropped the overflowing messages; keep consuming
		if errors.Is(err, nats.ErrSlowConsumer) {
			continue
		}

		return nil, fmt.Errorf("nats next %s: %w", s.subject, errors.Join(berr.ErrSourceClosed, err))
	}
}

func (s *source) Close() error {
	if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats unsubscribe %s: %w", s.subject, err)
	}

	return nil
}

type message struct {
	conn    Conn
	msg     *nats.Msg
	replied atomic.Bool
}

func (m *message) Data() []byte { return m.msg.Data }

func (m *message) Reply(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if m.msg.Reply == "" {
		return fmt.Errorf("nats reply: %w", berr.ErrNoReplySubject)
	}

	if !m.replied.CompareAndSwap(false, true) {
		return fmt.Errorf("nats reply: %w", berr.ErrAlreadyReplied)
	}

	if err := m.conn.Publish(m.msg.Reply, data); err != nil {
		return fmt.Errorf("nats reply %s: %w", m.msg.Reply, errors.Join(berr.ErrReplyFailed, err))
	}

	return nil
}
