// Package events はコミット済みの在庫台帳イベントを外部へ発行します
//
// 発行はベストエフォートです。台帳の正はPostgreSQL上の監査テーブルであり、
// 発行の失敗が予約・解放の結果を変えることはありません。
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/uma-arai/sbcntr-inventory/internal/common/config"
	"github.com/uma-arai/sbcntr-inventory/internal/model"
	"go.uber.org/zap"
)

// Publisher は台帳イベントの発行先です
type Publisher interface {
	Publish(ctx context.Context, event model.LedgerEvent) error
	Close() error
}

// NopPublisher は何も発行しません
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, model.LedgerEvent) error { return nil }
func (NopPublisher) Close() error                                      { return nil }

// RoutingKey はイベント種別ごとのルーティングキーです（例: ledger.reserved）
func RoutingKey(event model.LedgerEvent) string {
	return "ledger." + string(event.Type)
}

func encode(event model.LedgerEvent) ([]byte, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ledger event: %w", err)
	}
	return body, nil
}

// New は設定に応じたPublisherを作成します
func New(cfg config.EventsConfig, logger *zap.Logger) (Publisher, error) {
	switch cfg.Backend {
	case "", config.EventsBackendNone:
		return NopPublisher{}, nil
	case config.EventsBackendRedis:
		logger.Info("publishing ledger events to redis stream",
			zap.String("addr", cfg.RedisAddr),
			zap.String("stream", cfg.RedisStream))
		return NewRedisPublisher(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisStream), nil
	case config.EventsBackendRabbitMQ:
		logger.Info("publishing ledger events to rabbitmq",
			zap.String("exchange", cfg.RabbitMQExchange))
		return NewAMQPPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange)
	default:
		return nil, fmt.Errorf("unknown events backend: %s", cfg.Backend)
	}
}
