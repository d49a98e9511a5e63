package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-inventory/internal/common/config"
	"github.com/uma-arai/sbcntr-inventory/internal/common/database"
	"github.com/uma-arai/sbcntr-inventory/internal/common/utils"
	"github.com/uma-arai/sbcntr-inventory/internal/events"
	"github.com/uma-arai/sbcntr-inventory/internal/model"
	"github.com/uma-arai/sbcntr-inventory/internal/repository"
	"github.com/uma-arai/sbcntr-inventory/internal/service/inventory"
	"go.uber.org/zap"
)

// HorizonExtender は予約可能期間の延長です
type HorizonExtender interface {
	ExtendHorizon(ctx context.Context, roomID string, totalSlots int, newHorizonEnd model.DayKey) (int, error)
	Today() model.DayKey
	HorizonDays() int
}

// HorizonBatchService は全ての公開中の部屋について予約可能期間を延長します
type HorizonBatchService struct {
	publisher   events.Publisher
	roomRepo    repository.RoomRepository
	initializer HorizonExtender
	sfnClient   SFNClient
	cfg         *config.Config
	logger      *zap.Logger
}

// NewHorizonBatchService は新しいHorizonBatchServiceを作成します
// 接続のライフサイクルは呼び出し側（main）が管理します
func NewHorizonBatchService(cfg *config.Config, db *database.DB, sfnClient SFNClient, logger *zap.Logger) (*HorizonBatchService, error) {
	publisher, err := events.New(cfg.Events, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create event publisher: %w", err)
	}

	repoDB := repository.NewDB(db.DB)
	availabilityRepo := repository.NewAvailabilityRepository(repoDB, repository.NewLedgerEventRepository(repoDB))

	return &HorizonBatchService{
		publisher:   publisher,
		roomRepo:    repository.NewRoomRepository(repoDB),
		initializer: inventory.NewInitializer(availabilityRepo, publisher, cfg.Inventory, logger),
		sfnClient:   sfnClient,
		cfg:         cfg,
		logger:      logger,
	}, nil
}

// Close はイベント発行先を閉じます
func (s *HorizonBatchService) Close() error {
	if s.publisher != nil {
		return s.publisher.Close()
	}
	return nil
}

// Run は延長バッチを実行します
// 部屋ごとの失敗は集計して処理を続け、結果をStep Functionsに返します
func (s *HorizonBatchService) Run(ctx context.Context) error {
	ctx, seg := xray.BeginSubsegment(ctx, "HorizonBatchService.Run")
	defer seg.Close(nil)

	startTime := time.Now()

	summary, err := s.extendAll(ctx)
	if err != nil {
		seg.Close(err)
		return utils.GetStackWithError(err)
	}

	if err := s.sendTaskSuccess(ctx, summary); err != nil {
		return utils.GetStackWithError(err)
	}

	duration := time.Since(startTime)
	if err := seg.AddMetadata("duration", duration.String()); err != nil {
		s.logger.Warn("failed to add duration metadata", zap.Error(err))
	}
	if err := seg.AddMetadata("summary", summary); err != nil {
		s.logger.Warn("failed to add summary metadata", zap.Error(err))
	}

	s.logger.Info("horizon batch completed",
		zap.Int("processed", summary.Processed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("days_added", summary.DaysAdded),
		zap.Duration("duration", duration))
	return nil
}

func (s *HorizonBatchService) extendAll(ctx context.Context) (model.BatchSummary, error) {
	rooms, err := s.roomRepo.ListActive(ctx)
	if err != nil {
		return model.BatchSummary{}, fmt.Errorf("failed to list active rooms: %w", err)
	}

	end := s.initializer.Today().AddDays(s.initializer.HorizonDays())
	s.logger.Info("extending horizon", zap.Int("rooms", len(rooms)), zap.Stringer("horizon_end", end))

	var summary model.BatchSummary
	for _, room := range rooms {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("horizon batch interrupted: %w", err)
		}
		summary.Processed++

		added, err := s.initializer.ExtendHorizon(ctx, room.ID, room.Capacity, end)
		if err != nil {
			summary.Failed++
			summary.FailedIDs = append(summary.FailedIDs, room.ID)
			s.logger.Error("failed to extend horizon",
				zap.String("room_id", room.ID),
				zap.String("kind", string(model.KindOf(err))),
				zap.Error(err))
			continue
		}

		if added == 0 {
			summary.Skipped++
			continue
		}
		summary.Succeeded++
		summary.DaysAdded += added
	}

	return summary, nil
}

func (s *HorizonBatchService) sendTaskSuccess(ctx context.Context, summary model.BatchSummary) error {
	return sendTaskSuccess(ctx, s.sfnClient, s.cfg, s.logger, summary)
}
