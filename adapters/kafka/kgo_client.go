package kafka

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	berr "github.com/next-trace/scg-wordfreq/contract/errors"
)

// Concrete franz-go based constructor.

type Config struct {
	Brokers  []string
	TLS      *tls.Config
	ClientID string
	// Group joins a consumer group; leave empty on the requesting side so replies
	// are not split between group members.
	Group      string
	ReplyTopic string
}

// NewWithKgo builds a franz-go client based Adapter. The returned cleanup should be called to close the client.
func NewWithKgo(cfg Config) (*Adapter, func(), error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil, fmt.Errorf("%w: kafka brokers required", berr.ErrConnectFailed)
	}

	// start from records produced after construction; older requests and replies are stale
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AfterMilli(time.Now().UnixMilli())),
		kgo.AllowAutoTopicCreation(),
	}

	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}

	if cfg.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(cfg.TLS))
	}

	if cfg.Group != "" {
		opts = append(opts, kgo.ConsumerGroup(cfg.Group))
	}

	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: kafka client init: %w", berr.ErrConnectFailed, err)
	}

	ad := New(cl)
	ad.ReplyTopic = cfg.ReplyTopic

	cleanup := func() { cl.Close() }

	return ad, cleanup, nil
}
