package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	cbus "github.com/next-trace/scg-wordfreq/contract/bus"
	berr "github.com/next-trace/scg-wordfreq/contract/errors"
)

const (
	HeaderReplyTopic    = "reply_topic"
	HeaderCorrelationID = "correlation_id"

	replySuffix = ".reply"
)

// Client is the subset of *kgo.Client used by the adapter.
type Client interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	PollFetches(ctx context.Context) kgo.Fetches
	AddConsumeTopics(topics ...string)
	Close()
}

// Adapter implements cbus.Transport on Kafka topics. A request is a record on the
// subject topic carrying reply-topic and correlation-id headers; the reply is a record
// on the reply topic with the same correlation id.
//
// Request calls are serialized because they share one fetch loop.
type Adapter struct {
	Client Client
	// ReplyTopic defaults to the subject with a ".reply" suffix.
	ReplyTopic string
	// NewID generates correlation ids; defaults to uuid.NewString.
	NewID func() string

	mu       sync.Mutex
	watching map[string]bool
}

var _ cbus.Transport = (*Adapter)(nil)

// New creates a new Kafka adapter instance with the provided client.
func New(c Client) *Adapter { return &Adapter{Client: c, NewID: uuid.NewString} }

func (a *Adapter) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	if err := a.ready(ctx, berr.ErrRequestFailed, "request"); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	replyTopic := a.replyTopic(subject)
	a.watch(replyTopic)

	id := a.newID()
	rec := &kgo.Record{
		Topic: subject,
		Key:   []byte(id),
		Value: data,
		Headers: []kgo.RecordHeader{
			{Key: HeaderReplyTopic, Value: []byte(replyTopic)},
			{Key: HeaderCorrelationID, Value: []byte(id)},
		},
	}

	if err := a.Client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return nil, requestErr(subject, err)
	}

	for {
		fetches := a.Client.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			return nil, requestErr(subject, err)
		}

		if fetches.IsClientClosed() {
			return nil, fmt.Errorf("kafka request %s: %w", subject, errors.Join(berr.ErrRequestFailed, kgo.ErrClientClosed))
		}

		if err := fetchErr(fetches); err != nil {
			return nil, fmt.Errorf("kafka request %s: %w", subject, errors.Join(berr.ErrRequestFailed, err))
		}

		var reply *kgo.Record

		fetches.EachRecord(func(r *kgo.Record) {
			if reply == nil && r.Topic == replyTopic && header(r, HeaderCorrelationID) == id {
				reply = r
			}
		})

		if reply != nil {
			return reply.Value, nil
		}
	}
}

// Subscribe adds subject to the client's consumed topics. With a consumer group
// configured on the client, several services share the subject's partitions.
func (a *Adapter) Subscribe(ctx context.Context, subject string) (cbus.Source, error) {
	if err := a.ready(ctx, berr.ErrSubscribeFailed, "subscribe"); err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.watch(subject)
	a.mu.Unlock()

	return &source{client: a.Client, subject: subject}, nil
}

func (a *Adapter) ready(ctx context.Context, base error, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Client == nil {
		return fmt.Errorf("kafka %s: %w", label, base)
	}

	return nil
}

func (a *Adapter) watch(topic string) {
	if a.watching[topic] {
		return
	}

	if a.watching == nil {
		a.watching = make(map[string]bool)
	}

	a.Client.AddConsumeTopics(topic)
	a.watching[topic] = true
}

func (a *Adapter) replyTopic(subject string) string {
	if a.ReplyTopic != "" {
		return a.ReplyTopic
	}

	return subject + replySuffix
}

func (a *Adapter) newID() string {
	if a.NewID == nil {
		return uuid.NewString()
	}

	return a.NewID()
}

func requestErr(subject string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("kafka request %s: %w", subject, errors.Join(berr.ErrNoReply, err))
	default:
		return fmt.Errorf("kafka request %s: %w", subject, errors.Join(berr.ErrRequestFailed, err))
	}
}

// fetchErr returns the first fetch error the client will not retry on its own.
// Context errors are left to the caller's ctx check.
func fetchErr(fetches kgo.Fetches) error {
	var first error

	fetches.EachError(func(topic string, partition int32, err error) {
		if first != nil || kerr.IsRetriable(err) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}

		first = fmt.Errorf("fetch %s[%d]: %w", topic, partition, err)
	})

	return first
}

func header(r *kgo.Record, key string) string {
	for _, h := range r.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}

	return ""
}

type source struct {
	client  Client
	subject string
	pending []*kgo.Record
}

func (s *source) Next(ctx context.Context) (cbus.Message, error) {
	for len(s.pending) == 0 {
		fetches := s.client.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if fetches.IsClientClosed() {
			return nil, fmt.Errorf("kafka next %s: %w", s.subject, errors.Join(berr.ErrSourceClosed, kgo.ErrClientClosed))
		}

		if err := fetchErr(fetches); err != nil {
			return nil, fmt.Errorf("kafka next %s: %w", s.subject, errors.Join(berr.ErrSourceClosed, err))
		}

		fetches.EachRecord(func(r *kgo.Record) {
			if r.Topic == s.subject {
				s.pending = append(s.pending, r)
			}
		})
	}

	r := s.pending[0]
	s.pending = s.pending[1:]

	return &message{client: s.client, rec: r}, nil
}

// Close is a no-op; the client is owned by whoever built the adapter.
func (s *source) Close() error { return nil }

type message struct {
	client  Client
	rec     *kgo.Record
	replied atomic.Bool
}

func (m *message) Data() []byte { return m.rec.Value }

func (m *message) Reply(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	replyTopic := header(m.rec, HeaderReplyTopic)
	if replyTopic == "" {
		return fmt.Errorf("kafka reply: %w", berr.ErrNoReplySubject)
	}

	if !m.replied.CompareAndSwap(false, true) {
		return fmt.Errorf("kafka reply: %w", berr.ErrAlreadyReplied)
	}

	rec := &kgo.Record{
		Topic: replyTopic,
		Key:   m.rec.Key,
		Value: data,
		Headers: []kgo.RecordHeader{
			{Key: HeaderCorrelationID, Value: []byte(header(m.rec, HeaderCorrelationID))},
		},
	}

	if err := m.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("kafka reply %s: %w", replyTopic, errors.Join(berr.ErrReplyFailed, err))
	}

	return nil
}
