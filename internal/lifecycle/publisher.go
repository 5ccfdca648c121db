package lifecycle

import (
	"context"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	kafkax "github.com/ariefcatur/go-courier-orders/internal/kafka"
	"github.com/ariefcatur/go-courier-orders/internal/metrics"
	"github.com/ariefcatur/go-courier-orders/internal/orders"
)

const eventVersion = "1"

// Sender is one open connection to the message bus.
type Sender interface {
	Send(ctx context.Context, topic string, key, value []byte, headers ...kafkago.Header) error
	Close() error
}

// SenderDialer opens a fresh Sender per call.
type SenderDialer interface {
	Dial(ctx context.Context) (Sender, error)
}

type SenderDialerFunc func(ctx context.Context) (Sender, error)

func (f SenderDialerFunc) Dial(ctx context.Context) (Sender, error) { return f(ctx) }

// ProducerDialer adapts a kafka ProducerDialer to SenderDialer.
func ProducerDialer(d kafkax.ProducerDialer) SenderDialer {
	return SenderDialerFunc(func(ctx context.Context) (Sender, error) {
		p, err := d.Dial(ctx)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

// Publisher sends one OrderEvent per Publish call. There is no retry.
type Publisher struct {
	Sender  Sender
	Metrics *metrics.Metrics
}

// Publish returns *kafka.EventBrokerError on any failure, encoding included.
func (p *Publisher) Publish(ctx context.Context, topic string, ev orders.OrderEvent) error {
	err := p.publish(ctx, topic, ev)
	p.Metrics.ObservePublish(topic, err)
	return err
}

func (p *Publisher) publish(ctx context.Context, topic string, ev orders.OrderEvent) error {
	body, err := orders.EncodeEvent(ev)
	if err != nil {
		return kafkax.Wrap("encode", topic, err)
	}
	headers := []kafkago.Header{
		{Key: kafkax.HeaderEventID, Value: []byte(uuid.NewString())},
		{Key: kafkax.HeaderEventType, Value: []byte(topic)},
		{Key: kafkax.HeaderEventVersion, Value: []byte(eventVersion)},
	}
	otel.GetTextMapPropagator().Inject(ctx, kafkax.NewHeaderCarrier(&headers))

	return kafkax.Wrap("send", topic, p.Sender.Send(ctx, topic, orders.PartitionKey(ev.OrderID), body, headers...))
}
