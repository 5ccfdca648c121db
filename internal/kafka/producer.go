package kafka

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer sends one message at a time and waits for the broker to ack it.
// The topic is chosen per message.
type Producer struct {
	w messageWriter
}

func NewProducer(brokers []string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchSize:    1, // flush every message right away
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Send writes a single message and blocks until it is acknowledged or ctx ends.
func (p *Producer) Send(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header) error {
	err := p.w.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	})
	if err != nil {
		return Wrap("send", topic, errors.Wrap(err, "write message"))
	}
	return nil
}

func (p *Producer) Close() error {
	return Wrap("close producer", "", p.w.Close())
}

// ProducerDialer opens a Producer per Dial.
type ProducerDialer struct {
	Brokers []string
}

func (d ProducerDialer) Dial(context.Context) (*Producer, error) {
	if len(d.Brokers) == 0 {
		return nil, ErrNotConfigured
	}
	return NewProducer(d.Brokers), nil
}
