package lifecycle

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkax "github.com/ariefcatur/go-courier-orders/internal/kafka"
	"github.com/ariefcatur/go-courier-orders/internal/orders"
	"github.com/ariefcatur/go-courier-orders/internal/store"
	"github.com/ariefcatur/go-courier-orders/internal/store/memstore"
)

type sentMessage struct {
	topic   string
	key     []byte
	value   []byte
	headers []kafkago.Header
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sentMessage
	err    error
	dials  int
	closed int
}

func (f *fakeSender) Dial(context.Context) (Sender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	return f, nil
}

func (f *fakeSender) Send(_ context.Context, topic string, key, value []byte, headers ...kafkago.Header) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{topic: topic, key: key, value: value, headers: headers})
	return nil
}

func (f *fakeSender) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// countingCache mirrors the generation contract of the redis status cache.
type countingCache struct {
	entries     map[string]orders.Order
	gens        map[string]int
	invalidated []string
}

func newCountingCache() *countingCache {
	return &countingCache{entries: map[string]orders.Order{}, gens: map[string]int{}}
}

func (c *countingCache) Get(_ context.Context, id string) (orders.Order, bool, string, error) {
	o, ok := c.entries[id]
	return o, ok, strconv.Itoa(c.gens[id]), nil
}

func (c *countingCache) Fill(_ context.Context, o orders.Order, gen string) error {
	if gen == strconv.Itoa(c.gens[o.OrderID]) {
		c.entries[o.OrderID] = o
	}
	return nil
}

func (c *countingCache) Invalidate(_ context.Context, id string) error {
	delete(c.entries, id)
	c.gens[id]++
	c.invalidated = append(c.invalidated, id)
	return nil
}

// interleavedStore runs hook once, right after the first GetRow has read
// the row and before the caller sees it.
type interleavedStore struct {
	*memstore.Memory
	hook func()
	once sync.Once
}

func (s *interleavedStore) Dial(context.Context) (store.Store, error) { return s, nil }

func (s *interleavedStore) GetRow(ctx context.Context, table, key string) (store.Row, error) {
	row, err := s.Memory.GetRow(ctx, table, key)
	s.once.Do(s.hook)
	return row, err
}

var fixedNow = time.UnixMilli(1_700_000_000_000)

func seededStore(t *testing.T, orderList ...orders.Order) *memstore.Memory {
	t.Helper()
	m := memstore.New()
	repo := &orders.Repo{Store: m}
	require.NoError(t, repo.CreateTable(context.Background()))
	for _, o := range orderList {
		require.NoError(t, repo.SaveOrder(context.Background(), o, fixedNow))
	}
	return m
}

func order42(t *testing.T, state orders.State) orders.Order {
	t.Helper()
	o, err := orders.NewOrder("42", "c1", "r1", "A", "B", state)
	require.NoError(t, err)
	return o
}

func newTestCoordinator(stores store.Dialer, senders SenderDialer, opts Options) *Coordinator {
	opts.Log = zerolog.Nop()
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow.Add(time.Second) }
	}
	return NewCoordinator(stores, senders, opts)
}

func storedState(t *testing.T, m *memstore.Memory, id string) store.Cell {
	t.Helper()
	row, err := m.GetRow(context.Background(), orders.DefaultTable, id)
	require.NoError(t, err)
	return row.Columns["info:state"]
}

func TestMarkOutForDeliveryWritesThenPublishes(t *testing.T) {
	m := seededStore(t, order42(t, orders.StateCreated))
	sender := &fakeSender{}
	c := newTestCoordinator(m, sender, Options{})

	require.NoError(t, c.MarkOutForDelivery(context.Background(), "42"))

	cell := storedState(t, m, "42")
	assert.Equal(t, "OutForDelivery", string(cell.Value))
	assert.Equal(t, fixedNow.Add(time.Second).UnixMilli(), cell.Timestamp)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, orders.TopicOutForDelivery, msg.topic)
	assert.Equal(t, []byte("42"), msg.key)
	ev, err := orders.DecodeEvent(msg.value)
	require.NoError(t, err)
	assert.Equal(t, "42", ev.OrderID)
	assert.NotEmpty(t, kafkax.HeaderValue(msg.headers, kafkax.HeaderEventID))
	assert.Equal(t, orders.TopicOutForDelivery, kafkax.HeaderValue(msg.headers, kafkax.HeaderEventType))
	assert.Equal(t, "1", kafkax.HeaderValue(msg.headers, kafkax.HeaderEventVersion))
	assert.Equal(t, 1, sender.dials)
	assert.Equal(t, 1, sender.closed)
}

func TestMarkDeliveredWithCourier(t *testing.T) {
	m := seededStore(t, order42(t, orders.StateOutForDelivery))
	sender := &fakeSender{}
	c := newTestCoordinator(m, sender, Options{})

	require.NoError(t, c.MarkDelivered(context.Background(), "42", WithCourier("k7")))

	assert.Equal(t, "Delivered", string(storedState(t, m, "42").Value))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, orders.TopicDelivered, sender.sent[0].topic)
	assert.JSONEq(t, `{"order_id":"42","courier_id":"k7"}`, string(sender.sent[0].value))
}

func TestTransitionStoreFailurePublishesNothing(t *testing.T) {
	// no table: every put fails
	sender := &fakeSender{}
	c := newTestCoordinator(memstore.New(), sender, Options{})

	err := c.MarkOutForDelivery(context.Background(), "42")
	var dbErr *store.DBError
	require.True(t, errors.As(err, &dbErr), "expected DBError, got %v", err)
	assert.Empty(t, sender.sent)
}

func TestTransitionPublishFailureKeepsWrite(t *testing.T) {
	m := seededStore(t, order42(t, orders.StateCreated))
	sender := &fakeSender{err: errors.New("broker unreachable")}
	c := newTestCoordinator(m, sender, Options{})

	err := c.MarkOutForDelivery(context.Background(), "42")
	var be *kafkax.EventBrokerError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, orders.TopicOutForDelivery, be.Topic)
	assert.Equal(t, "OutForDelivery", string(storedState(t, m, "42").Value))
}

func TestTransitionBlindOverwrite(t *testing.T) {
	m := seededStore(t, order42(t, orders.StateDelivered))
	c := newTestCoordinator(m, &fakeSender{}, Options{})

	require.NoError(t, c.MarkOutForDelivery(context.Background(), "42"))
	assert.Equal(t, "OutForDelivery", string(storedState(t, m, "42").Value))

	// unknown ids are written too
	require.NoError(t, c.MarkDelivered(context.Background(), "1000"))
	assert.Equal(t, "Delivered", string(storedState(t, m, "1000").Value))
}

func TestTransitionGuarded(t *testing.T) {
	m := seededStore(t, order42(t, orders.StateDelivered))
	sender := &fakeSender{}
	c := newTestCoordinator(m, sender, Options{Guard: true})

	err := c.MarkOutForDelivery(context.Background(), "42")
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
	assert.Equal(t, "Delivered", string(storedState(t, m, "42").Value))
	assert.Empty(t, sender.sent)

	require.NoError(t, c.MarkDelivered(context.Background(), "42"))
	assert.Len(t, sender.sent, 1)

	err = c.MarkDelivered(context.Background(), "nope")
	assert.True(t, store.IsNotFound(err))
}

func TestTransitionNotConfigured(t *testing.T) {
	m := seededStore(t)
	c := newTestCoordinator(store.DialerFunc(func(context.Context) (store.Store, error) {
		return nil, store.ErrNotConfigured
	}), &fakeSender{}, Options{})
	assert.ErrorIs(t, c.MarkDelivered(context.Background(), "42"), store.ErrNotConfigured)

	c = newTestCoordinator(m, ProducerDialer(kafkax.ProducerDialer{}), Options{})
	assert.ErrorIs(t, c.MarkDelivered(context.Background(), "42"), kafkax.ErrNotConfigured)
	_, err := m.GetRow(context.Background(), orders.DefaultTable, "42")
	assert.True(t, store.IsNotFound(err), "nothing may be written without a bus")
}

func TestTransitionUnknownTarget(t *testing.T) {
	sender := &fakeSender{}
	c := newTestCoordinator(seededStore(t), sender, Options{})
	assert.Error(t, c.Transition(context.Background(), "42", orders.StateCreated))
	assert.Zero(t, sender.dials)
}

func TestCustomTopics(t *testing.T) {
	sender := &fakeSender{}
	c := newTestCoordinator(seededStore(t), sender, Options{Topics: orders.Topics{OutForDelivery: "ofd", Delivered: "dlv"}})
	require.NoError(t, c.MarkDelivered(context.Background(), "42"))
	assert.Equal(t, "dlv", sender.sent[0].topic)
}

func TestGetOrder(t *testing.T) {
	o := order42(t, "")
	m := seededStore(t, o)
	cache := newCountingCache()
	c := newTestCoordinator(m, &fakeSender{}, Options{Cache: cache})

	got, err := c.GetOrder(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, o, got)
	assert.Contains(t, cache.entries, "42")

	_, err = c.GetOrder(context.Background(), "99")
	var nf *store.RowNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "99", nf.ID)
}

func TestTransitionInvalidatesCache(t *testing.T) {
	m := seededStore(t, order42(t, orders.StateCreated))
	cache := newCountingCache()
	c := newTestCoordinator(m, &fakeSender{}, Options{Cache: cache})

	_, err := c.GetOrder(context.Background(), "42")
	require.NoError(t, err)
	require.NoError(t, c.MarkOutForDelivery(context.Background(), "42"))
	assert.Equal(t, []string{"42"}, cache.invalidated)

	got, err := c.GetOrder(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, orders.StateOutForDelivery, got.State)
}

func TestGetOrderDoesNotCacheRowReadBeforeConcurrentWrite(t *testing.T) {
	s := &interleavedStore{Memory: seededStore(t, order42(t, orders.StateCreated))}
	cache := newCountingCache()
	c := newTestCoordinator(s, &fakeSender{}, Options{Cache: cache})
	s.hook = func() { require.NoError(t, c.MarkOutForDelivery(context.Background(), "42")) }

	got, err := c.GetOrder(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, orders.StateCreated, got.State, "first read saw the row before the write")
	assert.NotContains(t, cache.entries, "42")

	got, err = c.GetOrder(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, orders.StateOutForDelivery, got.State)
}

func TestGetOrderRequiresBus(t *testing.T) {
	c := newTestCoordinator(seededStore(t, order42(t, "")), ProducerDialer(kafkax.ProducerDialer{}), Options{})
	_, err := c.GetOrder(context.Background(), "42")
	assert.ErrorIs(t, err, kafkax.ErrNotConfigured)
}

func TestHandlersReapplyWithoutPublishing(t *testing.T) {
	m := seededStore(t, order42(t, orders.StateCreated))
	sender := &fakeSender{}
	c := newTestCoordinator(m, sender, Options{})

	require.NoError(t, c.HandleOutForDelivery(context.Background(), []byte(`{"order_id":"42"}`)))
	assert.Equal(t, "OutForDelivery", string(storedState(t, m, "42").Value))

	require.NoError(t, c.HandleDelivered(context.Background(), []byte(`{"order_id":"42","courier_id":"k7"}`)))
	assert.Equal(t, "Delivered", string(storedState(t, m, "42").Value))
	assert.Empty(t, sender.sent)
	assert.Zero(t, sender.dials)
}

func TestHandlerRejectsMalformedPayload(t *testing.T) {
	c := newTestCoordinator(seededStore(t), &fakeSender{}, Options{})
	err := c.HandleDelivered(context.Background(), []byte("not json"))
	var ce *orders.CodecError
	assert.True(t, errors.As(err, &ce))
}

func TestGuardedReplayIsIdempotent(t *testing.T) {
	m := seededStore(t, order42(t, orders.StateCreated))
	sender := &fakeSender{}
	c := newTestCoordinator(m, sender, Options{Guard: true})

	require.NoError(t, c.MarkOutForDelivery(context.Background(), "42"))
	// the listener consumes the event just published
	require.NoError(t, c.HandleOutForDelivery(context.Background(), sender.sent[0].value))
	assert.Equal(t, "OutForDelivery", string(storedState(t, m, "42").Value))
}

func TestHandlersCoverBothTopics(t *testing.T) {
	c := newTestCoordinator(seededStore(t), &fakeSender{}, Options{})
	h := c.Handlers()
	assert.Len(t, h, 2)
	assert.Contains(t, h, orders.TopicOutForDelivery)
	assert.Contains(t, h, orders.TopicDelivered)
}

func TestPublishBodyIsEncodedEvent(t *testing.T) {
	sender := &fakeSender{}
	p := &Publisher{Sender: sender}
	require.NoError(t, p.Publish(context.Background(), "OrderDelivered", orders.OrderEvent{OrderID: "7"}))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, `{"order_id":"7"}`, string(sender.sent[0].value))
}
