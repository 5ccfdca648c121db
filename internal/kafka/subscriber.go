package kafka

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ariefcatur/go-courier-orders/internal/metrics"
)

const (
	commitTimeout = 5 * time.Second
	// DefaultDrainGrace bounds how long a batch already taken off the topic
	// keeps being handled after shutdown starts.
	DefaultDrainGrace = 10 * time.Second
)

// Handler processes one raw message payload. A returned error is logged; the
// message is committed anyway.
type Handler func(ctx context.Context, payload []byte) error

// Subscriber drives one BatchConsumer: poll a batch, hand every message to
// Handler in receipt order, then commit the batch.
type Subscriber struct {
	Consumer BatchConsumer
	Handler  Handler
	Log      zerolog.Logger
	Metrics  *metrics.Metrics
	// DrainGrace defaults to DefaultDrainGrace.
	DrainGrace time.Duration
}

// Run returns nil once ctx is cancelled. A failing poll or commit stops the
// subscription with that *EventBrokerError.
func (s *Subscriber) Run(ctx context.Context) error {
	topic := s.Consumer.Topic()
	log := s.Log.With().Str("topic", topic).Logger()
	log.Info().Msg("subscription started")

	for {
		batch, err := s.Consumer.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("subscription stopped")
				return nil
			}
			log.Error().Err(err).Msg("poll failed")
			return err
		}
		if len(batch) == 0 {
			continue
		}
		s.Metrics.ObserveBatch(topic, len(batch))

		// A fetched batch is handled to the end even when ctx is cancelled
		// meanwhile; otherwise it would be committed without being applied.
		handleCtx, stop := drainContext(ctx, s.drainGrace())
		for _, m := range batch {
			s.handle(log.WithContext(handleCtx), topic, m)
		}
		stop()

		// Commit even when ctx is already cancelled, so handled messages are
		// not redelivered.
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
		err = s.Consumer.Commit(commitCtx, batch...)
		cancel()
		if err != nil {
			log.Error().Err(err).Int("batch", len(batch)).Msg("commit failed")
			return err
		}
		s.Metrics.ObserveCommit(topic)
		log.Debug().Int("batch", len(batch)).Msg("batch committed")
	}
}

func (s *Subscriber) drainGrace() time.Duration {
	if s.DrainGrace <= 0 {
		return DefaultDrainGrace
	}
	return s.DrainGrace
}

// drainContext keeps ctx's values but outlives its cancellation by at most
// grace.
func drainContext(ctx context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	dctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, func() { time.AfterFunc(grace, cancel) })
	return dctx, func() {
		stop()
		cancel()
	}
}

func (s *Subscriber) handle(ctx context.Context, topic string, m kafka.Message) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, NewHeaderCarrier(&m.Headers))
	ctx, span := otel.Tracer("courier-order/kafka").Start(ctx, "consume "+topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination", topic),
			attribute.Int64("messaging.kafka.offset", m.Offset),
			attribute.Int("messaging.kafka.partition", m.Partition),
		))
	defer span.End()

	err := s.Handler(ctx, m.Value)
	s.Metrics.ObserveConsumed(topic, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		zerolog.Ctx(ctx).Error().Err(err).
			Int64("offset", m.Offset).
			Str("event_id", HeaderValue(m.Headers, HeaderEventID)).
			Msg("handler failed, message will not be retried")
	}
}
