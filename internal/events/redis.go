package events

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/uma-arai/sbcntr-inventory/internal/model"
)

type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisPublisher はRedis Streamsへイベントを追記します
type RedisPublisher struct {
	client streamClient
	stream string
	// maxLen を超えた古いエントリは概算で切り詰められます
	maxLen int64
}

// NewRedisPublisher は新しいRedisPublisherを作成します
func NewRedisPublisher(addr, password string, db int, stream string) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisPublisher{client: client, stream: stream, maxLen: 100000}
}

// Publish はイベントをJSONとして data フィールドに格納して追記します
func (p *RedisPublisher) Publish(ctx context.Context, event model.LedgerEvent) error {
	body, err := encode(event)
	if err != nil {
		return err
	}

	_, err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":      string(event.Type),
			"room_id":   event.RoomID,
			"data":      string(body),
			"timestamp": time.Now().Unix(),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to add ledger event to stream %s: %w", p.stream, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
