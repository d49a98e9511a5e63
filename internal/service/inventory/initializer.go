package inventory

import (
	"context"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-inventory/internal/common/config"
	"github.com/uma-arai/sbcntr-inventory/internal/common/models"
	"github.com/uma-arai/sbcntr-inventory/internal/common/utils"
	"github.com/uma-arai/sbcntr-inventory/internal/events"
	"github.com/uma-arai/sbcntr-inventory/internal/model"
	"github.com/uma-arai/sbcntr-inventory/internal/repository"
	"go.uber.org/zap"
)

// DefaultHorizonDays は部屋作成時に用意する日数です
const DefaultHorizonDays = 30

// Initializer は部屋の在庫レコードの初期投入と予約可能期間の延長を担当します
type Initializer struct {
	repo           repository.AvailabilityRepository
	publisher      events.Publisher
	logger         *zap.Logger
	retry          utils.RetryPolicy
	horizonDays    int
	maxHorizonDays int
	loc            *time.Location
	now            func() time.Time
}

// NewInitializer は新しいInitializerを作成します
func NewInitializer(repo repository.AvailabilityRepository, publisher events.Publisher, cfg config.InventoryConfig, logger *zap.Logger) *Initializer {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	horizonDays := cfg.HorizonDays
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	return &Initializer{
		repo:           repo,
		publisher:      publisher,
		logger:         logger,
		retry:          retryPolicy(cfg),
		horizonDays:    horizonDays,
		maxHorizonDays: cfg.MaxHorizonDays,
		loc:            time.UTC,
		now:            time.Now,
	}
}

// Today は在庫台帳における今日です
func (i *Initializer) Today() model.DayKey {
	return model.Today(i.now, i.loc)
}

// HorizonDays は初期投入・延長で用意する日数です
func (i *Initializer) HorizonDays() int {
	return i.horizonDays
}

// Seed は fromDate の暦日から horizonDays 日分のレコードを total = available = totalSlots で作成します
// 既にレコードのある日がひとつでもあればConflictErrorを返し、何も作成しません
func (i *Initializer) Seed(ctx context.Context, roomID string, totalSlots, horizonDays int, fromDate time.Time) error {
	ctx, seg := xray.BeginSubsegment(ctx, "Initializer.Seed")
	defer seg.Close(nil)

	if err := i.validate(roomID, totalSlots, horizonDays); err != nil {
		logFailure(i.logger, "seed rejected", err, zap.String("room_id", roomID))
		return err
	}

	start := model.DayOf(fromDate)
	dr := model.DateRange{CheckIn: start, CheckOut: start.AddDays(horizonDays)}
	now := i.now()
	audit := model.NewSeededEvent(model.LedgerEventSeeded, roomID, dr, totalSlots, now)

	if err := i.repo.InsertRange(ctx, roomID, dr, totalSlots, now, &audit); err != nil {
		err = classify("seed availability", err)
		logFailure(i.logger, "seed failed", err,
			zap.String("room_id", roomID), zap.String("range", dr.String()))
		return err
	}

	i.logger.Info("inventory seeded",
		zap.String("room_id", roomID),
		zap.String("range", dr.String()),
		zap.Int("total_slots", totalSlots))

	publishEvent(ctx, i.publisher, i.logger, audit)
	return nil
}

// ExtendHorizon は現在の最終日の翌日から newHorizonEnd の前日までのレコードを作成し、作成した日数を返します
//
// newHorizonEnd は含みません。レコードがない部屋や最終日が過去の部屋は今日から作成します。
// 既存の日には触れないため、同時に実行されたり繰り返し実行されても結果は変わりません。
func (i *Initializer) ExtendHorizon(ctx context.Context, roomID string, totalSlots int, newHorizonEnd model.DayKey) (int, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "Initializer.ExtendHorizon")
	defer seg.Close(nil)

	if newHorizonEnd.IsZero() {
		return 0, model.NewValidationError("horizon end is required")
	}
	if err := i.validate(roomID, totalSlots, 1); err != nil {
		logFailure(i.logger, "extend rejected", err, zap.String("room_id", roomID))
		return 0, err
	}
	today := i.Today()
	if !today.Before(newHorizonEnd) {
		return 0, nil
	}
	if i.maxHorizonDays > 0 && today.DaysUntil(newHorizonEnd) > i.maxHorizonDays {
		return 0, model.NewValidationError("horizon exceeds the maximum number of days")
	}

	var (
		last  model.DayKey
		found bool
	)
	err := utils.RetryRead(ctx, i.retry, func(ctx context.Context) error {
		var err error
		last, found, err = i.repo.MaxDate(ctx, roomID)
		return err
	})
	if err != nil {
		err = classify("extend availability", err)
		logFailure(i.logger, "failed to read horizon", err, zap.String("room_id", roomID))
		return 0, err
	}

	start := today
	eventType := model.LedgerEventSeeded
	if found {
		eventType = model.LedgerEventExtended
		// 過去の日は予約できないので作らない
		if next := last.AddDays(1); next.After(today) {
			start = next
		}
	}
	if !start.Before(newHorizonEnd) {
		return 0, nil
	}

	dr := model.DateRange{CheckIn: start, CheckOut: newHorizonEnd}
	now := i.now()
	audit := model.NewSeededEvent(eventType, roomID, dr, totalSlots, now)

	inserted, err := i.repo.InsertMissingRange(ctx, roomID, dr, totalSlots, now, &audit)
	if err != nil {
		err = classify("extend availability", err)
		logFailure(i.logger, "extend failed", err,
			zap.String("room_id", roomID), zap.String("range", dr.String()))
		return 0, err
	}

	if inserted > 0 {
		i.logger.Info("inventory horizon extended",
			zap.String("room_id", roomID),
			zap.String("range", dr.String()),
			zap.Int("days_added", inserted))
		publishEvent(ctx, i.publisher, i.logger, audit)
	}
	return inserted, nil
}

// SeedNewRoom は部屋作成時に今日から予約可能期間分の在庫を用意します
func (i *Initializer) SeedNewRoom(ctx context.Context, room models.Room) error {
	if room.Capacity <= 0 {
		return model.NewValidationError("room capacity must be greater than 0")
	}
	return i.Seed(ctx, room.ID, room.Capacity, i.horizonDays, i.Today().Time())
}

func (i *Initializer) validate(roomID string, totalSlots, horizonDays int) error {
	if roomID == "" {
		return model.NewValidationError("room_id is required")
	}
	if totalSlots < 0 || totalSlots > model.MaxSlots {
		return model.NewValidationError("total_slots is out of range")
	}
	if horizonDays < 1 {
		return model.NewValidationError("horizon must be at least 1 day")
	}
	if i.maxHorizonDays > 0 && horizonDays > i.maxHorizonDays {
		return model.NewValidationError("horizon exceeds the maximum number of days")
	}
	return nil
}
