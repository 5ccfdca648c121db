package kafka

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	sent   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.sent = append(w.sent, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestSend(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{w: w}

	err := p.Send(context.Background(), "OrderDelivered", []byte("42"), []byte(`{"order_id":"42"}`),
		kafka.Header{Key: HeaderEventType, Value: []byte("Delivered")})
	require.NoError(t, err)
	require.Len(t, w.sent, 1)
	assert.Equal(t, "OrderDelivered", w.sent[0].Topic)
	assert.Equal(t, []byte("42"), w.sent[0].Key)
	assert.Equal(t, "Delivered", HeaderValue(w.sent[0].Headers, HeaderEventType))
	assert.False(t, w.sent[0].Time.IsZero())

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestSendFailureIsBrokerError(t *testing.T) {
	p := &Producer{w: &fakeWriter{err: errors.New("leader not available")}}

	err := p.Send(context.Background(), "OrderDelivered", nil, []byte("{}"))
	var be *EventBrokerError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "send", be.Op)
	assert.Equal(t, "OrderDelivered", be.Topic)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestProducerDialer(t *testing.T) {
	_, err := ProducerDialer{}.Dial(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)

	p, err := ProducerDialer{Brokers: []string{"localhost:9092"}}.Dial(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Close())
}
