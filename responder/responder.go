// Package responder runs the analyzer side of the word-frequency exchange: it
// subscribes to the request subject and answers every well-formed request exactly once.
package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/next-trace/scg-wordfreq/analyzer"
	cbus "github.com/next-trace/scg-wordfreq/contract/bus"
	"github.com/next-trace/scg-wordfreq/contract/wordfreq"
	"github.com/next-trace/scg-wordfreq/servicebus"
)

// LevelCritical marks failures that end the consumption loop.
const LevelCritical = slog.LevelError + 4

const defaultHandleTimeout = 30 * time.Second

// Config holds the responder settings.
type Config struct {
	Subject string
	// Workers bounds concurrent handlers; 1 handles messages one after another.
	Workers int
	// HandleTimeout bounds one message, including the reply. Handlers run on a context
	// detached from shutdown so in-flight work can finish.
	HandleTimeout time.Duration
	// RequestsPerSecond limits intake; zero disables limiting.
	RequestsPerSecond float64
	Burst             int
}

// State is a step of the service lifecycle.
type State int32

const (
	StateStarting State = iota
	StateSubscribed
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateSubscribed:
		return "subscribed"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Service consumes requests from a subscription and replies through the bus-bound handler.
type Service struct {
	cfg     Config
	sub     cbus.Subscriber
	bus     cbus.Bus
	logger  *slog.Logger
	limiter *rate.Limiter

	state atomic.Int32
	ready chan struct{}
	once  sync.Once
}

// New builds a Service. b must have a handler bound for wordfreq.Request; see NewBus.
func New(cfg Config, sub cbus.Subscriber, b cbus.Bus, logger *slog.Logger) *Service {
	if cfg.Subject == "" {
		cfg.Subject = wordfreq.DefaultSubject
	}

	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = defaultHandleTimeout
	}

	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		cfg:    cfg,
		sub:    sub,
		bus:    b,
		logger: logger.With("subject", cfg.Subject),
		ready:  make(chan struct{}),
	}

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(math.Ceil(cfg.RequestsPerSecond))
		}

		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return s
}

// NewBus returns a bus with the analyzer bound for wordfreq.Request, behind panic
// recovery and query logging.
func NewBus(logger *slog.Logger) (cbus.Bus, error) {
	b := servicebus.New(logger, servicebus.WithQueryMiddleware(
		servicebus.Recover(),
		servicebus.Logging(logger),
	))

	if err := servicebus.BindQuery[wordfreq.Request, wordfreq.Response](b, analyzer.Handler{}); err != nil {
		return nil, err
	}

	return b, nil
}

// State reports the current lifecycle step.
func (s *Service) State() State { return State(s.state.Load()) }

// Ready is closed once the subscription is established.
func (s *Service) Ready() <-chan struct{} { return s.ready }

// Run subscribes and serves until ctx is canceled, which returns nil, or until the
// message source fails, which is logged as critical and returned.
// Per-message failures are logged and never end the loop.
func (s *Service) Run(ctx context.Context) error {
	s.setState(StateStarting)
	defer s.setState(StateStopped)

	s.logger.InfoContext(ctx, "subscribing")

	src, err := s.sub.Subscribe(ctx, s.cfg.Subject)
	if err != nil {
		return s.stop(ctx, fmt.Errorf("subscribe: %w", err))
	}

	var wg sync.WaitGroup

	// in-flight handlers reply through the source's connection, so wait before closing it
	defer func() {
		wg.Wait()

		if err := src.Close(); err != nil {
			s.logger.WarnContext(ctx, "closing subscription", "err", err)
		}
	}()

	s.setState(StateSubscribed)
	s.once.Do(func() { close(s.ready) })
	s.logger.InfoContext(ctx, "ready", "workers", s.cfg.Workers)

	slots := make(chan struct{}, s.cfg.Workers)

	for {
		if err := s.pace(ctx); err != nil {
			return s.stop(ctx, nil)
		}

		msg, err := src.Next(ctx)
		if err != nil {
			return s.stop(ctx, fmt.Errorf("next: %w", err))
		}

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			// abandoned before processing; no reply is sent
			return s.stop(ctx, nil)
		}

		wg.Add(1)

		go func() {
			defer wg.Done()
			defer func() { <-slots }()

			s.handle(ctx, msg)
		}()
	}
}

// pace blocks until the limiter grants the next intake or ctx is done. A token due
// after ctx's deadline is waited for rather than refused.
func (s *Service) pace(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}

	r := s.limiter.Reserve()

	d := r.Delay()
	if d == 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.Cancel()

		return ctx.Err()
	}
}

func (s *Service) stop(ctx context.Context, err error) error {
	s.setState(StateStopping)

	if ctx.Err() != nil || err == nil || errors.Is(err, context.Canceled) {
		s.logger.InfoContext(context.WithoutCancel(ctx), "service stopping")

		return nil
	}

	s.logger.Log(ctx, LevelCritical, "consumption loop crashed", "err", err)

	return err
}

func (s *Service) handle(parent context.Context, msg cbus.Message) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.cfg.HandleTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "handler failed", "panic", r)
		}
	}()

	req, err := wordfreq.DecodeRequest(msg.Data())
	if err != nil {
		s.logger.DebugContext(ctx, "skipping malformed payload", "err", err)

		return
	}

	s.logger.InfoContext(ctx, "processing request", "limit", req.Limit())

	resp, err := servicebus.Ask[wordfreq.Request, wordfreq.Response](ctx, s.bus, req)
	if err != nil {
		s.logger.ErrorContext(ctx, "handler failed", "err", err)

		return
	}

	data, err := wordfreq.Encode(resp)
	if err != nil {
		s.logger.ErrorContext(ctx, "handler failed", "err", err)

		return
	}

	if err := msg.Reply(ctx, data); err != nil {
		s.logger.ErrorContext(ctx, "reply failed", "err", err)

		return
	}

	s.logger.InfoContext(ctx, "reply sent", "total_words", resp.TotalWords)
}

func (s *Service) setState(st State) { s.state.Store(int32(st)) }

// ReplaceLevel is a slog.HandlerOptions.ReplaceAttr that prints LevelCritical as CRITICAL.
func ReplaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}

	if l, ok := a.Value.Any().(slog.Level); ok && l >= LevelCritical {
		a.Value = slog.StringValue("CRITICAL")
	}

	return a
}
