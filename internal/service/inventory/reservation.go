package inventory

import (
	"context"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/google/uuid"
	"github.com/uma-arai/sbcntr-inventory/internal/common/config"
	"github.com/uma-arai/sbcntr-inventory/internal/events"
	"github.com/uma-arai/sbcntr-inventory/internal/model"
	"github.com/uma-arai/sbcntr-inventory/internal/repository"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// Engine は日付区間の枠を全日一括で確保・解放します
//
// 確保と解放は冪等ではありません。同じ要求を2回送ると2回分の枠が動きます。
type Engine struct {
	repo      repository.AvailabilityRepository
	publisher events.Publisher
	logger    *zap.Logger
	maxNights int
	now       func() time.Time
	newID     func() uuid.UUID
}

// NewEngine は新しいEngineを作成します
func NewEngine(repo repository.AvailabilityRepository, publisher events.Publisher, cfg config.InventoryConfig, logger *zap.Logger) *Engine {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Engine{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		maxNights: cfg.MaxNights,
		now:       time.Now,
		newID:     uuid.New,
	}
}

// Reserve は区間の全日から intent.Quantity 枠を確保します
// 1日でも確保できなければ何も変更しません
func (e *Engine) Reserve(ctx context.Context, intent model.ReservationIntent) (model.ReservationConfirmation, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "Engine.Reserve")
	defer seg.Close(nil)

	if err := intent.Validate(e.maxNights); err != nil {
		logFailure(e.logger, "reservation rejected", err, intentFields(intent)...)
		return model.ReservationConfirmation{}, err
	}

	conf := model.ReservationConfirmation{
		ID:        e.newID(),
		RoomID:    intent.RoomID,
		CheckIn:   intent.Range.CheckIn,
		CheckOut:  intent.Range.CheckOut,
		Quantity:  intent.Quantity,
		Dates:     intent.Range.Days(),
		CreatedAt: e.now(),
	}
	audit := model.NewReservedEvent(conf)

	records, err := e.repo.ReserveRange(ctx, intent, conf.CreatedAt, &audit)
	if err != nil {
		err = classify("reserve availability", err)
		logFailure(e.logger, "reservation failed", err, intentFields(intent)...)
		return model.ReservationConfirmation{}, err
	}
	conf.Records = records

	e.logger.Info("reservation confirmed",
		append(intentFields(intent), zap.String("confirmation_id", conf.ID.String()))...)

	publishEvent(ctx, e.publisher, e.logger, audit)
	return conf, nil
}

// Release は区間の全日に intent.Quantity 枠を戻します
// 総枠数を超える日があれば何も変更せずにReleaseOverflowErrorを返します
func (e *Engine) Release(ctx context.Context, intent model.ReservationIntent) (model.ReleaseAck, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "Engine.Release")
	defer seg.Close(nil)

	if err := intent.Validate(e.maxNights); err != nil {
		logFailure(e.logger, "release rejected", err, intentFields(intent)...)
		return model.ReleaseAck{}, err
	}

	now := e.now()
	audit := model.NewReleasedEvent(intent, now)

	records, err := e.repo.ReleaseRange(ctx, intent, now, &audit)
	if err != nil {
		err = classify("release availability", err)
		logFailure(e.logger, "release failed", err, intentFields(intent)...)
		return model.ReleaseAck{}, err
	}

	e.logger.Info("release applied", intentFields(intent)...)

	publishEvent(ctx, e.publisher, e.logger, audit)
	return model.ReleaseAck{
		RoomID:   intent.RoomID,
		CheckIn:  intent.Range.CheckIn,
		CheckOut: intent.Range.CheckOut,
		Quantity: intent.Quantity,
		Records:  records,
	}, nil
}

// ResizeCapacity は予約済みの枠を保ったまま総枠数を変更する操作です
// 現在は未対応で、常にUnsupportedOperationErrorを返します
func (e *Engine) ResizeCapacity(ctx context.Context, roomID string, newCapacity int) error {
	err := model.NewUnsupportedOperationError("resizing room capacity")
	e.logger.Info("capacity resize requested",
		zap.String("room_id", roomID), zap.Int("new_capacity", newCapacity), zap.Error(err))
	return err
}

// publishEvent はコミット済みのイベントを発行します
// 呼び出し元のキャンセルには従わず、publishTimeout で打ち切ります
func publishEvent(ctx context.Context, publisher events.Publisher, logger *zap.Logger, event model.LedgerEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish ledger event",
			zap.String("room_id", event.RoomID),
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}
