package nats_test

import (
	"context"
	"errors"
	"testing"

	natsgo "github.com/nats-io/nats.go"

	"github.com/next-trace/scg-wordfreq/adapters/nats"
	berr "github.com/next-trace/scg-wordfreq/contract/errors"
)

type fakeConn struct {
	reqSubject string
	reqData    []byte
	reply      *natsgo.Msg
	reqErr     error

	published []struct {
		subject string
		data    []byte
	}
	pubErr error

	subSubject string
	subQueue   string
	sub        *fakeSub
	subErr     error
}

func (f *fakeConn) Request(_ context.Context, subject string, data []byte) (*natsgo.Msg, error) {
	f.reqSubject, f.reqData = subject, data

	return f.reply, f.reqErr
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.published = append(f.published, struct {
		subject string
		data    []byte
	}{subject, data})

	return f.pubErr
}

func (f *fakeConn) SubscribeSync(subject, queue string) (nats.Subscription, error) {
	f.subSubject, f.subQueue = subject, queue
	if f.subErr != nil {
		return nil, f.subErr
	}

	return f.sub, nil
}

type fakeSub struct {
	msgs         []*natsgo.Msg
	errs         []error
	unsubscribed bool
}

func (s *fakeSub) NextMsgWithContext(ctx context.Context) (*natsgo.Msg, error) {
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]

		return nil, err
	}

	if len(s.msgs) > 0 {
		m := s.msgs[0]
		s.msgs = s.msgs[1:]

		return m, nil
	}

	<-ctx.Done()

	return nil, ctx.Err()
}

func (s *fakeSub) Unsubscribe() error {
	s.unsubscribed = true

	return nil
}

func TestNATS_Request(t *testing.T) {
	fc := &fakeConn{reply: &natsgo.Msg{Data: []byte(`{"totalWords":1}`)}}
	ad := nats.New(fc)

	got, err := ad.Request(t.Context(), "word.frequency", []byte(`{"text":"a"}`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if string(got) != `{"totalWords":1}` {
		t.Fatalf("reply=%s", got)
	}

	if fc.reqSubject != "word.frequency" || string(fc.reqData) != `{"text":"a"}` {
		t.Fatalf("sent %s %s", fc.reqSubject, fc.reqData)
	}
}

func TestNATS_Request_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "timeout", err: natsgo.ErrTimeout, want: berr.ErrNoReply},
		{name: "deadline", err: context.DeadlineExceeded, want: berr.ErrNoReply},
		{name: "no responders", err: natsgo.ErrNoResponders, want: berr.ErrNoReply},
		{name: "canceled", err: context.Canceled, want: context.Canceled},
		{name: "other", err: errors.New("boom"), want: berr.ErrRequestFailed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ad := nats.New(&fakeConn{reqErr: tc.err})

			_, err := ad.Request(t.Context(), "s", nil)
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNATS_NilConnError(t *testing.T) {
	ad := nats.New(nil)

	if _, err := ad.Request(t.Context(), "s", nil); !errors.Is(err, berr.ErrRequestFailed) {
		t.Fatalf("want ErrRequestFailed, got %v", err)
	}

	if _, err := ad.Subscribe(t.Context(), "s"); !errors.Is(err, berr.ErrSubscribeFailed) {
		t.Fatalf("want ErrSubscribeFailed, got %v", err)
	}
}

func TestNATS_Subscribe_NextAndReply(t *testing.T) {
	sub := &fakeSub{msgs: []*natsgo.Msg{{Subject: "word.frequency", Reply: "_INBOX.1", Data: []byte("req")}}}
	fc := &fakeConn{sub: sub}
	ad := nats.New(fc)
	ad.QueueGroup = "analyzers"

	src, err := ad.Subscribe(t.Context(), "word.frequency")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if fc.subSubject != "word.frequency" || fc.subQueue != "analyzers" {
		t.Fatalf("subscribed %s/%s", fc.subSubject, fc.subQueue)
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

	if len(fc.published) != 1 || fc.published[0].subject != "_INBOX.1" || string(fc.published[0].data) != "resp" {
		t.Fatalf("published=%+v", fc.published)
	}

	if err := m.Reply(t.Context(), []byte("again")); !errors.Is(err, berr.ErrAlreadyReplied) {
		t.Fatalf("want ErrAlreadyReplied, got %v", err)
	}

	if err := src.Close(); err != nil || !sub.unsubscribed {
		t.Fatalf("close: %v unsubscribed=%v", err, sub.unsubscribed)
	}
}

func TestNATS_Reply_Errors(t *testing.T) {
	sub := &fakeSub{msgs: []*natsgo.Msg{{Data: []byte("no inbox")}, {Reply: "_INBOX.2"}}}
	fc := &fakeConn{sub: sub, pubErr: errors.New("write failed")}

	src, err := nats.New(fc).Subscribe(t.Context(), "s")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	m, _ := src.Next(t.Context())
	if err := m.Reply(t.Context(), nil); !errors.Is(err, berr.ErrNoReplySubject) {
		t.Fatalf("want ErrNoReplySubject, got %v", err)
	}

	m, _ = src.Next(t.Context())
	if err := m.Reply(t.Context(), nil); !errors.Is(err, berr.ErrReplyFailed) {
		t.Fatalf("want ErrReplyFailed, got %v", err)
	}
}

func TestNATS_Next_SkipsSlowConsumer_AndReportsClosed(t *testing.T) {
	sub := &fakeSub{errs: []error{natsgo.ErrSlowConsumer, natsgo.ErrConnectionClosed}}

	src, err := nats.New(&fakeConn{sub: sub}).Subscribe(t.Context(), "s")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	_, err = src.Next(t.Context())
	if !errors.Is(err, berr.ErrSourceClosed) || !errors.Is(err, natsgo.ErrConnectionClosed) {
		t.Fatalf("want ErrSourceClosed wrapping ErrConnectionClosed, got %v", err)
	}
}

func TestNATS_Next_Canceled(t *testing.T) {
	src, err := nats.New(&fakeConn{sub: &fakeSub{}}).Subscribe(t.Context(), "s")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if _, err := src.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestNATS_SubscribeError(t *testing.T) {
	ad := nats.New(&fakeConn{subErr: errors.New("bad subject")})

	if _, err := ad.Subscribe(t.Context(), "s"); !errors.Is(err, berr.ErrSubscribeFailed) {
		t.Fatalf("want ErrSubscribeFailed, got %v", err)
	}
}
