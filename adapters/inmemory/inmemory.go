package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	cbus "github.com/next-trace/scg-wordfreq/contract/bus"
	berr "github.com/next-trace/scg-wordfreq/contract/errors"
)

const defaultBuffer = 64

// Broker is a thread-safe in-process implementation of cbus.Transport.
// Each request goes to one subscriber of the subject, picked round-robin, which
// mirrors a queue group on a real bus.
type Broker struct {
	mu   sync.Mutex
	subs map[string][]*Source
	next map[string]int

	// Requests records every payload sent through Request or Publish, for tests and examples.
	Requests [][]byte
}

// Ensure Broker implements the combined contract.
var _ cbus.Transport = (*Broker)(nil)

// New creates a new in-memory broker instance.
func New() *Broker {
	return &Broker{
		subs: make(map[string][]*Source),
		next: make(map[string]int),
	}
}

// Subscribe registers a new source on subject.
func (b *Broker) Subscribe(ctx context.Context, subject string) (cbus.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &Source{
		broker:  b,
		subject: subject,
		ch:      make(chan *Message, defaultBuffer),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[subject] = append(b.subs[subject], s)
	b.mu.Unlock()

	return s, nil
}

// Request delivers data to one subscriber and waits for its reply.
// With no subscribers, or no reply before ctx is done, it returns errors.ErrNoReply.
func (b *Broker) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	replies := make(chan []byte, 1)
	msg := &Message{data: data, reply: replies}

	if err := b.deliver(ctx, subject, data, msg); err != nil {
		return nil, err
	}

	select {
	case r := <-replies:
		return r, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("inmemory request %s: %w", subject, errors.Join(berr.ErrNoReply, ctx.Err()))
	}
}

// Publish delivers data to one subscriber without a reply channel.
func (b *Broker) Publish(ctx context.Context, subject string, data []byte) error {
	return b.deliver(ctx, subject, data, &Message{data: data})
}

func (b *Broker) deliver(ctx context.Context, subject string, data []byte, msg *Message) error {
	b.mu.Lock()
	b.Requests = append(b.Requests, data)

	subs := b.subs[subject]
	if len(subs) == 0 {
		b.mu.Unlock()

		return fmt.Errorf("inmemory request %s: %w: no responders", subject, berr.ErrNoReply)
	}

	s := subs[b.next[subject]%len(subs)]
	b.next[subject]++
	b.mu.Unlock()

	select {
	case s.ch <- msg:
		return nil
	case <-s.done:
		return fmt.Errorf("inmemory request %s: %w: subscriber closed", subject, berr.ErrNoReply)
	case <-ctx.Done():
		return fmt.Errorf("inmemory request %s: %w", subject, errors.Join(berr.ErrNoReply, ctx.Err()))
	}
}

func (b *Broker) remove(s *Source) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[s.subject]
	for i, cur := range subs {
		if cur == s {
			b.subs[s.subject] = append(subs[:i:i], subs[i+1:]...)

			break
		}
	}
}

// Source is one subscription on the broker.
type Source struct {
	broker  *Broker
	subject string
	ch      chan *Message
	done    chan struct{}
	once    sync.Once
}

var _ cbus.Source = (*Source)(nil)

func (s *Source) Next(ctx context.Context) (cbus.Message, error) {
	select {
	case <-s.done:
		return nil, fmt.Errorf("inmemory next %s: %w", s.subject, berr.ErrSourceClosed)
	default:
	}

	select {
	case m := <-s.ch:
		return m, nil
	case <-s.done:
		return nil, fmt.Errorf("inmemory next %s: %w", s.subject, berr.ErrSourceClosed)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Source) Close() error {
	s.once.Do(func() {
		s.broker.remove(s)
		close(s.done)
	})

	return nil
}

// Message is a delivery from the broker. Its reply channel is buffered so a reply
// never blocks, even when the requester already gave up.
type Message struct {
	data    []byte
	reply   chan []byte
	replied atomic.Bool
}

var _ cbus.Message = (*Message)(nil)

func (m *Message) Data() []byte { return m.data }

func (m *Message) Reply(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if m.reply == nil {
		return fmt.Errorf("inmemory reply: %w", berr.ErrNoReplySubject)
	}

	if !m.replied.CompareAndSwap(false, true) {
		return fmt.Errorf("inmemory reply: %w", berr.ErrAlreadyReplied)
	}

	m.reply <- data

	return nil
}
