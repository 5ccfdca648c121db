package lifecycle

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ariefcatur/go-courier-orders/internal/metrics"
	"github.com/ariefcatur/go-courier-orders/internal/orders"
	"github.com/ariefcatur/go-courier-orders/internal/store"
)

const tracerName = "courier-order/lifecycle"

// OrderCache is a best-effort read cache in front of the store. Its errors
// are logged and never fail a request. On a miss Get returns a generation
// token; Fill must drop the entry if Invalidate ran after that token was read.
type OrderCache interface {
	Get(ctx context.Context, orderID string) (o orders.Order, ok bool, gen string, err error)
	Fill(ctx context.Context, o orders.Order, gen string) error
	Invalidate(ctx context.Context, orderID string) error
}

type NopCache struct{}

func (NopCache) Get(context.Context, string) (orders.Order, bool, string, error) {
	return orders.Order{}, false, "", nil
}
func (NopCache) Fill(context.Context, orders.Order, string) error { return nil }
func (NopCache) Invalidate(context.Context, string) error         { return nil }

type Options struct {
	Table  string
	Topics orders.Topics
	// Guard rejects transitions that do not move the order forward. Without
	// it the new state overwrites whatever is stored.
	Guard   bool
	Cache   OrderCache
	Metrics *metrics.Metrics
	Log     zerolog.Logger
	Now     func() time.Time
}

// Coordinator runs state transitions: write the state, then publish the
// matching event. On the consuming side it only re-applies the write.
type Coordinator struct {
	stores  store.Dialer
	senders SenderDialer
	table   string
	topics  orders.Topics
	guard   bool
	cache   OrderCache
	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time
}

func NewCoordinator(stores store.Dialer, senders SenderDialer, opts Options) *Coordinator {
	c := &Coordinator{
		stores:  stores,
		senders: senders,
		table:   opts.Table,
		topics:  opts.Topics,
		guard:   opts.Guard,
		cache:   opts.Cache,
		metrics: opts.Metrics,
		log:     opts.Log,
		now:     opts.Now,
	}
	if c.table == "" {
		c.table = orders.DefaultTable
	}
	if c.topics == (orders.Topics{}) {
		c.topics = orders.DefaultTopics()
	}
	if c.cache == nil {
		c.cache = NopCache{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

type transition struct {
	courierID string
}

type TransitionOption func(*transition)

// WithCourier adds the courier id to the published event.
func WithCourier(courierID string) TransitionOption {
	return func(t *transition) { t.courierID = courierID }
}

func (c *Coordinator) MarkOutForDelivery(ctx context.Context, orderID string, opts ...TransitionOption) error {
	return c.Transition(ctx, orderID, orders.StateOutForDelivery, opts...)
}

func (c *Coordinator) MarkDelivered(ctx context.Context, orderID string, opts ...TransitionOption) error {
	return c.Transition(ctx, orderID, orders.StateDelivered, opts...)
}

// Transition writes target as the order state and then publishes an
// OrderEvent to the target's topic. A failed write publishes nothing. A
// failed publish is returned after the write has already happened; the
// store and the bus then disagree until the next transition.
func (c *Coordinator) Transition(ctx context.Context, orderID string, target orders.State, opts ...TransitionOption) (err error) {
	var t transition
	for _, o := range opts {
		o(&t)
	}
	topic, ok := c.topics.For(target)
	if !ok {
		return errors.Errorf("no topic for state %q", target)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "lifecycle.Transition", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.state", target.String()),
		attribute.String("messaging.destination", topic),
	))
	log := c.log.With().Str("order_id", orderID).Str("state", target.String()).Logger()
	defer func() {
		c.metrics.ObserveTransition(target.String(), err)
		endSpan(span, err)
	}()

	st, err := c.stores.Dial(ctx)
	if err != nil {
		return err
	}
	defer c.closeStore(st)

	sender, err := c.senders.Dial(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sender.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("close producer")
		}
	}()

	if err := c.write(log.WithContext(ctx), st, orderID, target); err != nil {
		log.Error().Err(err).Msg("state write failed")
		return err
	}

	pub := &Publisher{Sender: sender, Metrics: c.metrics}
	if err := pub.Publish(ctx, topic, orders.OrderEvent{OrderID: orderID, CourierID: t.courierID}); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("state written but event not published")
		return err
	}
	log.Info().Str("topic", topic).Msg("order state changed")
	return nil
}

// Apply re-applies a state write without publishing.
func (c *Coordinator) Apply(ctx context.Context, orderID string, target orders.State) (err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "lifecycle.Apply", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.state", target.String()),
	))
	defer func() { endSpan(span, err) }()

	st, err := c.stores.Dial(ctx)
	if err != nil {
		return err
	}
	defer c.closeStore(st)
	return c.write(ctx, st, orderID, target)
}

func (c *Coordinator) write(ctx context.Context, st store.Store, orderID string, target orders.State) error {
	repo := &orders.Repo{Store: st, Table: c.table}
	if c.guard {
		current, err := repo.CurrentState(ctx, orderID)
		if err != nil {
			return err
		}
		if !orders.CanTransition(current, target) {
			return errors.Wrapf(orders.ErrInvalidTransition, "%s -> %s", current, target)
		}
	}
	if err := repo.UpdateState(ctx, orderID, target, c.now()); err != nil {
		return err
	}
	if err := c.cache.Invalidate(ctx, orderID); err != nil {
		c.log.Warn().Err(err).Str("order_id", orderID).Msg("status cache invalidate failed")
	}
	return nil
}

// GetOrder reads the order through the cache. Like the transitions it
// fails when either the store or the bus is not configured.
func (c *Coordinator) GetOrder(ctx context.Context, orderID string) (o orders.Order, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "lifecycle.GetOrder", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer func() { endSpan(span, err) }()

	st, err := c.stores.Dial(ctx)
	if err != nil {
		return orders.Order{}, err
	}
	defer c.closeStore(st)

	sender, err := c.senders.Dial(ctx)
	if err != nil {
		return orders.Order{}, err
	}
	if err := sender.Close(); err != nil {
		c.log.Warn().Err(err).Msg("close producer")
	}

	cached, ok, gen, err := c.cache.Get(ctx, orderID)
	if err != nil {
		c.log.Warn().Err(err).Str("order_id", orderID).Msg("status cache read failed")
	} else if ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}

	o, err = (&orders.Repo{Store: st, Table: c.table}).GetOrder(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	if err := c.cache.Fill(ctx, o, gen); err != nil {
		c.log.Warn().Err(err).Str("order_id", orderID).Msg("status cache write failed")
	}
	return o, nil
}

func (c *Coordinator) closeStore(st store.Store) {
	if err := st.Close(); err != nil {
		c.log.Warn().Err(err).Msg("close store")
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
