package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uma-arai/sbcntr-inventory/internal/common/config"
	"github.com/uma-arai/sbcntr-inventory/internal/model"
	"go.uber.org/zap"
)

type fakeStream struct {
	args []*redis.XAddArgs
	err  error
}

func (f *fakeStream) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, a)
	return redis.NewStringResult("1-0", f.err)
}

func (f *fakeStream) Close() error { return nil }

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func (f *fakeChannel) Close() error { return nil }

func reservedEvent(t *testing.T) model.LedgerEvent {
	t.Helper()

	checkIn, err := model.ParseDayKey("2024-01-01")
	require.NoError(t, err)
	return model.LedgerEvent{
		RoomID:    "room-1",
		Type:      model.LedgerEventReserved,
		CheckIn:   checkIn,
		CheckOut:  checkIn.AddDays(2),
		Quantity:  1,
		Reference: "conf-1",
		CreatedAt: time.Date(2023, 12, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestRedisPublisher_Publish(t *testing.T) {
	stream := &fakeStream{}
	p := &RedisPublisher{client: stream, stream: "inventory:ledger-events", maxLen: 10}

	require.NoError(t, p.Publish(context.Background(), reservedEvent(t)))
	require.Len(t, stream.args, 1)

	args := stream.args[0]
	assert.Equal(t, "inventory:ledger-events", args.Stream)
	assert.Equal(t, int64(10), args.MaxLen)

	values := args.Values.(map[string]interface{})
	assert.Equal(t, "reserved", values["type"])
	assert.Equal(t, "room-1", values["room_id"])

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &decoded))
	assert.Equal(t, "2024-01-01", decoded["check_in"])
	assert.Equal(t, "2024-01-03", decoded["check_out"])
}

func TestRedisPublisher_PublishError(t *testing.T) {
	p := &RedisPublisher{client: &fakeStream{err: errors.New("connection refused")}, stream: "s"}

	err := p.Publish(context.Background(), reservedEvent(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to add ledger event to stream s")
}

func TestAMQPPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQPPublisher{channel: ch, exchange: "inventory"}

	event := reservedEvent(t)
	require.NoError(t, p.Publish(context.Background(), event))

	assert.Equal(t, "inventory", ch.exchange)
	assert.Equal(t, "ledger.reserved", ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.Equal(t, event.CreatedAt, ch.msg.Timestamp)

	var decoded model.LedgerEvent
	require.NoError(t, json.Unmarshal(ch.msg.Body, &decoded))
	assert.Equal(t, event.CheckIn, decoded.CheckIn)
	assert.Equal(t, "conf-1", decoded.Reference)

	require.NoError(t, p.Close())
}

func TestNew(t *testing.T) {
	logger := zap.NewNop()

	p, err := New(config.EventsConfig{Backend: config.EventsBackendNone}, logger)
	require.NoError(t, err)
	assert.IsType(t, NopPublisher{}, p)
	assert.NoError(t, p.Publish(context.Background(), model.LedgerEvent{}))

	p, err = New(config.EventsConfig{Backend: config.EventsBackendRedis, RedisAddr: "localhost:6379", RedisStream: "s"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &RedisPublisher{}, p)
	assert.NoError(t, p.Close())

	_, err = New(config.EventsConfig{Backend: "kafka"}, logger)
	assert.Error(t, err)
}
