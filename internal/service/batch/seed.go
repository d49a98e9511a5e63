package batch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-inventory/internal/common/config"
	"github.com/uma-arai/sbcntr-inventory/internal/common/database"
	"github.com/uma-arai/sbcntr-inventory/internal/common/models"
	"github.com/uma-arai/sbcntr-inventory/internal/common/utils"
	"github.com/uma-arai/sbcntr-inventory/internal/events"
	"github.com/uma-arai/sbcntr-inventory/internal/model"
	"github.com/uma-arai/sbcntr-inventory/internal/repository"
	"github.com/uma-arai/sbcntr-inventory/internal/service/inventory"
	"go.uber.org/zap"
)

// RoomSeeder は新しい部屋の在庫投入です
type RoomSeeder interface {
	SeedNewRoom(ctx context.Context, room models.Room) error
}

// SeedBatchService は作成された部屋の在庫を初期投入します
type SeedBatchService struct {
	args        []model.RoomCreatedEvent
	publisher   events.Publisher
	roomRepo    repository.RoomRepository
	initializer RoomSeeder
	sfnClient   SFNClient
	cfg         *config.Config
	logger      *zap.Logger
}

// NewSeedBatchService は新しいSeedBatchServiceを作成します
// 接続のライフサイクルは呼び出し側（main）が管理します
func NewSeedBatchService(cfg *config.Config, db *database.DB, sfnClient SFNClient, logger *zap.Logger) (*SeedBatchService, error) {
	publisher, err := events.New(cfg.Events, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create event publisher: %w", err)
	}

	repoDB := repository.NewDB(db.DB)
	availabilityRepo := repository.NewAvailabilityRepository(repoDB, repository.NewLedgerEventRepository(repoDB))

	return &SeedBatchService{
		publisher:   publisher,
		roomRepo:    repository.NewRoomRepository(repoDB),
		initializer: inventory.NewInitializer(availabilityRepo, publisher, cfg.Inventory, logger),
		sfnClient:   sfnClient,
		cfg:         cfg,
		logger:      logger,
	}, nil
}

// Close はイベント発行先を閉じます
func (s *SeedBatchService) Close() error {
	if s.publisher != nil {
		return s.publisher.Close()
	}
	return nil
}

// SetArgs はシードバッチの入力を設定します
func (s *SeedBatchService) SetArgs(input model.SeedInput) {
	s.args = input.Rooms
}

// Run はシードバッチを実行します
func (s *SeedBatchService) Run(ctx context.Context) error {
	ctx, seg := xray.BeginSubsegment(ctx, "SeedBatchService.Run")
	defer seg.Close(nil)

	startTime := time.Now()
	if err := seg.AddMetadata("room_event_count", len(s.args)); err != nil {
		s.logger.Warn("failed to add room_event_count metadata", zap.Error(err))
	}

	rooms, roomIDs, err := s.getRooms(ctx)
	if err != nil {
		seg.Close(err)
		return utils.GetStackWithError(err)
	}

	var summary model.BatchSummary
	for _, roomID := range roomIDs {
		if err := ctx.Err(); err != nil {
			return utils.GetStackWithError(fmt.Errorf("seed batch interrupted: %w", err))
		}
		summary.Processed++

		room, ok := rooms[roomID]
		if !ok {
			summary.Failed++
			summary.FailedIDs = append(summary.FailedIDs, roomID)
			s.logger.Error("room not found", zap.String("room_id", roomID))
			continue
		}

		err := s.initializer.SeedNewRoom(ctx, room)
		switch {
		case err == nil:
			summary.Succeeded++
			summary.DaysAdded += s.cfg.Inventory.HorizonDays
		case errors.Is(err, model.ErrConflict):
			// Step Functionsの再実行で同じ部屋が届くことがある
			summary.Skipped++
			s.logger.Info("room already seeded", zap.String("room_id", roomID))
		default:
			summary.Failed++
			summary.FailedIDs = append(summary.FailedIDs, roomID)
			s.logger.Error("failed to seed room",
				zap.String("room_id", roomID),
				zap.String("kind", string(model.KindOf(err))),
				zap.Error(err))
		}
	}

	if err := sendTaskSuccess(ctx, s.sfnClient, s.cfg, s.logger, summary); err != nil {
		return utils.GetStackWithError(err)
	}

	duration := time.Since(startTime)
	if err := seg.AddMetadata("duration", duration.String()); err != nil {
		s.logger.Warn("failed to add duration metadata", zap.Error(err))
	}

	s.logger.Info("seed batch completed",
		zap.Int("processed", summary.Processed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", duration))
	return nil
}

// getRooms は入力に含まれる部屋をまとめて取得します
// N+1とならないように重複のない部屋IDを先に集めてから1回で取得する
func (s *SeedBatchService) getRooms(ctx context.Context) (map[string]models.Room, []string, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "SeedBatchService.getRooms")
	defer seg.Close(nil)

	roomIDs := make([]string, 0, len(s.args))
	for _, event := range s.args {
		if event.RoomID == "" {
			err := fmt.Errorf("room_id is required")
			seg.Close(err)
			return nil, nil, err
		}
		if slices.Contains(roomIDs, event.RoomID) {
			continue
		}
		roomIDs = append(roomIDs, event.RoomID)
	}

	if err := seg.AddMetadata("unique_room_count", len(roomIDs)); err != nil {
		s.logger.Warn("failed to add unique_room_count metadata", zap.Error(err))
	}

	rooms, err := s.roomRepo.GetByIDs(ctx, roomIDs)
	if err != nil {
		seg.Close(err)
		return nil, nil, fmt.Errorf("failed to get rooms: %w", err)
	}
	return rooms, roomIDs, nil
}
