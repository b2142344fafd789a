package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/gomarketplace/pkg/logger"
)

// --- Event tests ---

var sessionCart = Aggregate{Type: "cart", ID: "session-1"}

func TestNewEvent_Fields(t *testing.T) {
	type cartData struct {
		ItemCount int     `json:"item_count"`
		Total     float64 `json:"total"`
	}

	data := cartData{ItemCount: 3, Total: 29.9}
	event, err := NewEvent("cart.updated", sessionCart, data, WithSource("cart-store"))
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "cart.updated", event.EventType)
	assert.Equal(t, "session-1", event.AggregateID)
	assert.Equal(t, "cart", event.AggregateType)
	assert.Equal(t, "cart-store", event.Source)
	assert.Equal(t, SchemaVersion, event.Version)
	assert.Zero(t, event.Sequence)
	assert.Nil(t, event.Metadata)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)

	got, err := DecodeData[cartData](event)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestNewEvent_Options(t *testing.T) {
	event, err := NewEvent("cart.updated", sessionCart, nil,
		WithCorrelationID("corr-abc"),
		WithSequence(7),
		WithMetadata("layout", "single"),
		WithMetadata("backend", "redis"),
	)
	require.NoError(t, err)

	assert.Equal(t, "corr-abc", event.CorrelationID)
	assert.Equal(t, uint64(7), event.Sequence)
	assert.Equal(t, map[string]string{"layout": "single", "backend": "redis"}, event.Metadata)
}

func TestNewEvent_InvalidData(t *testing.T) {
	_, err := NewEvent("cart.updated", sessionCart, make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode cart.updated payload")
}

func TestNewEvent_MissingAggregate(t *testing.T) {
	_, err := NewEvent("cart.updated", Aggregate{Type: "cart"}, nil)
	require.ErrorIs(t, err, ErrInvalidEvent)
	assert.Contains(t, err.Error(), "aggregate_id")
}

func TestNewEvent_UniqueIDs(t *testing.T) {
	a, err := NewEvent("cart.updated", sessionCart, nil)
	require.NoError(t, err)
	b, err := NewEvent("cart.updated", sessionCart, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.EventID, b.EventID)
}

func TestEvent_MarshalDecode(t *testing.T) {
	original, err := NewEvent("cart.updated", sessionCart, map[string]int{"items": 2},
		WithCorrelationID("corr-abc"), WithSequence(3), WithMetadata("layout", "single"))
	require.NoError(t, err)

	raw, err := original.Marshal()
	require.NoError(t, err)

	restored, err := DecodeEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, original.EventID, restored.EventID)
	assert.Equal(t, "corr-abc", restored.CorrelationID)
	assert.Equal(t, uint64(3), restored.Sequence)
	assert.Equal(t, "single", restored.Metadata["layout"])
	assert.JSONEq(t, string(original.Data), string(restored.Data))
}

func TestEvent_MarshalRejectsIncompleteEnvelope(t *testing.T) {
	_, err := (&Event{EventID: "id"}).Marshal()
	require.ErrorIs(t, err, ErrInvalidEvent)
	assert.Contains(t, err.Error(), "event_type")
}

func TestDecodeEvent_Invalid(t *testing.T) {
	_, err := DecodeEvent([]byte(`{broken`))
	require.Error(t, err)

	_, err = DecodeEvent([]byte(`{"event_id":"x"}`))
	require.ErrorIs(t, err, ErrInvalidEvent)
}

func TestDecodeData_Mismatch(t *testing.T) {
	event, err := NewEvent("cart.updated", sessionCart, "not an object")
	require.NoError(t, err)

	_, err = DecodeData[map[string]int](event)
	require.Error(t, err)
}

// --- Config / topic ---

func TestDefaultProducerConfig(t *testing.T) {
	brokers := []string{"broker1:9092", "broker2:9092"}
	cfg := DefaultProducerConfig(brokers)

	assert.Equal(t, brokers, cfg.Brokers)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 10*time.Millisecond, cfg.BatchTimeout)
	assert.False(t, cfg.Async)
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "gomarketplace.cart.updated", Topic("cart", "updated"))
	assert.Equal(t, "gomarketplace.cart.cleared", Topic("cart", "cleared"))
}

// --- Producer ---

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, nil, logger.Discard())
	event, err := NewEvent("cart.updated", Aggregate{Type: "cart", ID: "s-1"}, map[string]int{"n": 1},
		WithSource("cart-store"), WithCorrelationID("corr-1"), WithSequence(12))
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), "gomarketplace.cart.updated", event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "gomarketplace.cart.updated", msg.Topic)
	assert.Equal(t, "s-1", string(msg.Key))
	assert.Equal(t, "cart.updated", header(msg, "event_type"))
	assert.Equal(t, "cart-store", header(msg, "source"))
	assert.Equal(t, "corr-1", header(msg, "correlation_id"))
	assert.Equal(t, "12", header(msg, "sequence"))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)
}

func TestProducer_PublishWithoutCorrelationID(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, nil, logger.Discard())
	event, err := NewEvent("cart.updated", Aggregate{Type: "cart", ID: "s-1"}, nil)
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), "t", event))
	assert.Empty(t, header(w.msgs[0], "correlation_id"))
	assert.Empty(t, header(w.msgs[0], "sequence"))
}

func TestProducer_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := NewProducerWithWriter(w, nil, logger.Discard())
	event, err := NewEvent("cart.updated", Aggregate{Type: "cart", ID: "s-1"}, nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), "topic-x", event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic-x")
	assert.Contains(t, err.Error(), "leader not available")
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, nil, logger.Discard())
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	err := PingBrokers(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers")
}

func TestPingBrokers_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := PingBrokers(ctx, []string{"127.0.0.1:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}
