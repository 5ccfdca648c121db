package kafka

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultPollTimeout = time.Second
	DefaultBatchLinger = 50 * time.Millisecond
	DefaultMaxBatch    = 100
)

// BatchConsumer is one subscription to one topic.
type BatchConsumer interface {
	// Poll returns the next batch. An empty batch is not an error.
	Poll(ctx context.Context) ([]kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
	Topic() string
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerConfig struct {
	Brokers     []string
	Group       string
	Topic       string
	PollTimeout time.Duration
	BatchLinger time.Duration
	MaxBatch    int
}

// Consumer reads one topic as a member of a consumer group. Offsets are only
// committed through Commit. A group without a committed offset starts from
// the earliest message.
type Consumer struct {
	r           messageReader
	topic       string
	pollTimeout time.Duration
	linger      time.Duration
	maxBatch    int
}

func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNotConfigured
	}
	if cfg.Topic == "" || cfg.Group == "" {
		return nil, errors.New("kafka consumer needs a topic and a group")
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.Group,
		Topic:          cfg.Topic,
		StartOffset:    kafka.FirstOffset,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, cfg), nil
}

func newConsumer(r messageReader, cfg ConsumerConfig) *Consumer {
	c := &Consumer{
		r:           r,
		topic:       cfg.Topic,
		pollTimeout: cfg.PollTimeout,
		linger:      cfg.BatchLinger,
		maxBatch:    cfg.MaxBatch,
	}
	if c.pollTimeout <= 0 {
		c.pollTimeout = DefaultPollTimeout
	}
	if c.linger < 0 {
		c.linger = 0
	}
	if c.maxBatch <= 0 {
		c.maxBatch = DefaultMaxBatch
	}
	return c
}

func (c *Consumer) Topic() string { return c.topic }

// Poll waits up to the poll timeout for a first message, then keeps collecting
// whatever arrives within the linger window, up to the batch limit. It returns
// ctx.Err() once ctx is done.
func (c *Consumer) Poll(ctx context.Context) ([]kafka.Message, error) {
	first, ok, err := c.fetch(ctx, c.pollTimeout)
	if err != nil || !ok {
		return nil, err
	}
	batch := []kafka.Message{first}
	if c.linger == 0 {
		return batch, nil
	}
	lingerCtx, cancel := context.WithTimeout(ctx, c.linger)
	defer cancel()
	for len(batch) < c.maxBatch {
		m, err := c.r.FetchMessage(lingerCtx)
		if err != nil {
			if lingerCtx.Err() != nil {
				break
			}
			return nil, Wrap("poll", c.topic, errors.Wrap(err, "fetch message"))
		}
		batch = append(batch, m)
	}
	return batch, nil
}

// fetch reports ok=false without error when the timeout passes with nothing
// to read.
func (c *Consumer) fetch(ctx context.Context, timeout time.Duration) (kafka.Message, bool, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	m, err := c.r.FetchMessage(fetchCtx)
	if err == nil {
		return m, true, nil
	}
	if ctx.Err() != nil {
		return kafka.Message{}, false, ctx.Err()
	}
	if fetchCtx.Err() != nil {
		return kafka.Message{}, false, nil
	}
	return kafka.Message{}, false, Wrap("poll", c.topic, errors.Wrap(err, "fetch message"))
}

func (c *Consumer) Commit(ctx context.Context, msgs ...kafka.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := c.r.CommitMessages(ctx, msgs...); err != nil {
		return Wrap("commit", c.topic, errors.Wrap(err, "commit offsets"))
	}
	return nil
}

func (c *Consumer) Close() error {
	return Wrap("close consumer", c.topic, c.r.Close())
}
