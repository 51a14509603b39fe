package rabbitmq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/next-trace/scg-wordfreq/adapters/rabbitmq"
	berr "github.com/next-trace/scg-wordfreq/contract/errors"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	declared  []string
	consumed  []string
	published []published
	closed    bool

	deliveries chan amqp.Delivery
	// respond, when set, is called on every publish and may push deliveries.
	respond func(f *fakeChannel, p published)

	declareErr error
	consumeErr error
	publishErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 8)}
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.declared = append(f.declared, name)

	return amqp.Queue{Name: name}, f.declareErr
}

func (f *fakeChannel) Consume(queue, _ string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	f.consumed = append(f.consumed, queue)
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}

	return f.deliveries, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	p := published{exchange: exchange, key: key, msg: msg}
	f.published = append(f.published, p)

	if f.publishErr != nil {
		return f.publishErr
	}

	if f.respond != nil {
		f.respond(f, p)
	}

	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true

	return nil
}

func opener(ch *fakeChannel) rabbitmq.Opener {
	return func() (rabbitmq.Channel, error) { return ch, nil }
}

func TestRabbitMQ_Request_MatchesCorrelationID(t *testing.T) {
	ch := newFakeChannel()
	ch.respond = func(f *fakeChannel, p published) {
		f.deliveries <- amqp.Delivery{CorrelationId: "someone-else", Body: []byte("stray")}
		f.deliveries <- amqp.Delivery{CorrelationId: p.msg.CorrelationId, Body: []byte("resp")}
	}

	ad := rabbitmq.New(opener(ch))
	ad.NewID = func() string { return "corr-1" }

	got, err := ad.Request(t.Context(), "word.frequency", []byte("req"))
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if string(got) != "resp" {
		t.Fatalf("reply=%s", got)
	}

	if len(ch.consumed) != 1 || ch.consumed[0] != "amq.rabbitmq.reply-to" {
		t.Fatalf("consumed=%v", ch.consumed)
	}

	p := ch.published[0]
	if p.exchange != "" || p.key != "word.frequency" {
		t.Fatalf("published to %q/%q", p.exchange, p.key)
	}

	if p.msg.CorrelationId != "corr-1" || p.msg.ReplyTo != "amq.rabbitmq.reply-to" || p.msg.ContentType != "application/json" {
		t.Fatalf("publishing=%+v", p.msg)
	}

	if !ch.closed {
		t.Fatalf("request channel not closed")
	}
}

func TestRabbitMQ_Request_Timeout(t *testing.T) {
	ad := rabbitmq.New(opener(newFakeChannel()))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	_, err := ad.Request(ctx, "s", nil)
	if !errors.Is(err, berr.ErrNoReply) {
		t.Fatalf("want ErrNoReply, got %v", err)
	}
}

func TestRabbitMQ_Request_Errors(t *testing.T) {
	if _, err := rabbitmq.New(nil).Request(t.Context(), "s", nil); !errors.Is(err, berr.ErrRequestFailed) {
		t.Fatalf("nil opener: want ErrRequestFailed, got %v", err)
	}

	failing := rabbitmq.New(func() (rabbitmq.Channel, error) { return nil, errors.New("no channel") })
	if _, err := failing.Request(t.Context(), "s", nil); !errors.Is(err, berr.ErrRequestFailed) {
		t.Fatalf("open error: want ErrRequestFailed, got %v", err)
	}

	ch := newFakeChannel()
	ch.publishErr = errors.New("blocked")

	if _, err := rabbitmq.New(opener(ch)).Request(t.Context(), "s", nil); !errors.Is(err, berr.ErrRequestFailed) {
		t.Fatalf("publish error: want ErrRequestFailed, got %v", err)
	}

	ch = newFakeChannel()
	close(ch.deliveries)

	if _, err := rabbitmq.New(opener(ch)).Request(t.Context(), "s", nil); !errors.Is(err, berr.ErrRequestFailed) {
		t.Fatalf("closed replies: want ErrRequestFailed, got %v", err)
	}
}

func TestRabbitMQ_Subscribe_NextAndReply(t *testing.T) {
	ch := newFakeChannel()
	ch.deliveries <- amqp.Delivery{Body: []byte("req"), ReplyTo: "amq.rabbitmq.reply-to.g1", CorrelationId: "c9"}

	src, err := rabbitmq.New(opener(ch)).Subscribe(t.Context(), "word.frequency")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if len(ch.declared) != 1 || ch.declared[0] != "word.frequency" {
		t.Fatalf("declared=%v", ch.declared)
	}

	m, err := src.Next(t.Context())
	if err != nil {
		t.Fatalf("next: %v", err)
	}

	if string(m.Data()) != "req" {
		t.Fatalf("data=%s", m.Data())
	}

	if err := m.Reply(t.Context(), []byte("resp")); err != nil {
		t.Fatalf("reply: %v", err)
	}

	p := ch.published[0]
	if p.key != "amq.rabbitmq.reply-to.g1" || p.msg.CorrelationId != "c9" || string(p.msg.Body) != "resp" {
		t.Fatalf("reply published=%+v", p)
	}

	if err := m.Reply(t.Context(), []byte("again")); !errors.Is(err, berr.ErrAlreadyReplied) {
		t.Fatalf("want ErrAlreadyReplied, got %v", err)
	}

	if err := src.Close(); err != nil || !ch.closed {
		t.Fatalf("close: %v closed=%v", err, ch.closed)
	}
}

func TestRabbitMQ_Subscribe_Errors(t *testing.T) {
	ch := newFakeChannel()
	ch.declareErr = errors.New("access refused")

	if _, err := rabbitmq.New(opener(ch)).Subscribe(t.Context(), "s"); !errors.Is(err, berr.ErrSubscribeFailed) {
		t.Fatalf("declare: want ErrSubscribeFailed, got %v", err)
	}

	if !ch.closed {
		t.Fatalf("channel leaked after declare failure")
	}

	ch = newFakeChannel()
	ch.consumeErr = errors.New("exclusive")

	if _, err := rabbitmq.New(opener(ch)).Subscribe(t.Context(), "s"); !errors.Is(err, berr.ErrSubscribeFailed) {
		t.Fatalf("consume: want ErrSubscribeFailed, got %v", err)
	}
}

func TestRabbitMQ_Next_ClosedAndCanceled(t *testing.T) {
	ch := newFakeChannel()

	src, err := rabbitmq.New(opener(ch)).Subscribe(t.Context(), "s")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if _, err := src.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}

	close(ch.deliveries)

	if _, err := src.Next(t.Context()); !errors.Is(err, berr.ErrSourceClosed) {
		t.Fatalf("want ErrSourceClosed, got %v", err)
	}
}

func TestRabbitMQ_Reply_NoReplyTo(t *testing.T) {
	ch := newFakeChannel()
	ch.deliveries <- amqp.Delivery{Body: []byte("fire and forget")}

	src, err := rabbitmq.New(opener(ch)).Subscribe(t.Context(), "s")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	m, err := src.Next(t.Context())
	if err != nil {
		t.Fatalf("next: %v", err)
	}

	if err := m.Reply(t.Context(), nil); !errors.Is(err, berr.ErrNoReplySubject) {
		t.Fatalf("want ErrNoReplySubject, got %v", err)
	}
}
