// Package inventory は在庫台帳の読み取り、予約エンジン、在庫の初期投入を提供します
//
// 台帳の状態はすべてPostgreSQLにあり、このパッケージはプロセス内に状態を持ちません。
// 複数のAPIインスタンスやバッチが同じ台帳を同時に更新しても整合性はDB側で保たれます。
package inventory

import (
	"context"
	"iter"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-inventory/internal/common/config"
	"github.com/uma-arai/sbcntr-inventory/internal/common/utils"
	"github.com/uma-arai/sbcntr-inventory/internal/model"
	"github.com/uma-arai/sbcntr-inventory/internal/repository"
	"go.uber.org/zap"
)

// Ledger は部屋×日付ごとの在庫の読み取りを担当します
type Ledger struct {
	repo      repository.AvailabilityRepository
	retry     utils.RetryPolicy
	logger    *zap.Logger
	maxNights int
	now       func() time.Time
}

// NewLedger は新しいLedgerを作成します
func NewLedger(repo repository.AvailabilityRepository, cfg config.InventoryConfig, logger *zap.Logger) *Ledger {
	return &Ledger{
		repo:      repo,
		retry:     retryPolicy(cfg),
		logger:    logger,
		maxNights: cfg.MaxNights,
		now:       time.Now,
	}
}

func retryPolicy(cfg config.InventoryConfig) utils.RetryPolicy {
	return utils.RetryPolicy{
		Attempts:   cfg.ReadRetryAttempts,
		Backoff:    cfg.ReadRetryBackoff,
		MaxBackoff: time.Second,
	}
}

// Get は指定された部屋・日付の在庫を返します
// 在庫が未設定の場合はNotFoundエラーです（空き0とは区別されます）
func (l *Ledger) Get(ctx context.Context, roomID string, day model.DayKey) (model.AvailabilityRecord, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "Ledger.Get")
	defer seg.Close(nil)

	if roomID == "" || day.IsZero() {
		return model.AvailabilityRecord{}, model.NewValidationError("room_id and date are required")
	}

	var rec model.AvailabilityRecord
	err := utils.RetryRead(ctx, l.retry, func(ctx context.Context) error {
		var err error
		rec, err = l.repo.Get(ctx, roomID, day)
		return err
	})
	if err != nil {
		err = classify("get availability", err)
		logFailure(l.logger, "failed to get availability", err,
			zap.String("room_id", roomID), zap.String("date", day.String()))
		return model.AvailabilityRecord{}, err
	}
	return rec, nil
}

// GetOrCreate は既存のレコードを返すか、全枠空きのレコードを作成して返します
// 同時に作成された場合はConflictErrorを返すので、呼び出し側は Get で取り直してください
func (l *Ledger) GetOrCreate(ctx context.Context, roomID string, day model.DayKey, totalSlots int) (model.AvailabilityRecord, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "Ledger.GetOrCreate")
	defer seg.Close(nil)

	if totalSlots < 0 || totalSlots > model.MaxSlots {
		return model.AvailabilityRecord{}, model.NewValidationError("total_slots is out of range")
	}

	rec, err := l.Get(ctx, roomID, day)
	if err == nil {
		return rec, nil
	}
	if model.KindOf(err) != model.KindNotFound {
		return model.AvailabilityRecord{}, err
	}

	now := l.now()
	dr := model.DateRange{CheckIn: day, CheckOut: day.AddDays(1)}
	if err := l.repo.InsertRange(ctx, roomID, dr, totalSlots, now, nil); err != nil {
		err = classify("create availability", err)
		logFailure(l.logger, "failed to create availability", err,
			zap.String("room_id", roomID), zap.String("date", day.String()))
		return model.AvailabilityRecord{}, err
	}

	return model.NewAvailabilityRecord(roomID, day, totalSlots, now), nil
}

// ListRange は [CheckIn, CheckOut) の在庫を日付の昇順に返すシーケンスです
//
// シーケンスは遅延評価で、range のたびにDBへ問い合わせ直します。
// 区間内に在庫のない日がある場合は、レコードを返す前にIncompleteRangeErrorをひとつだけ返します。
func (l *Ledger) ListRange(ctx context.Context, roomID string, r model.DateRange) iter.Seq2[model.AvailabilityRecord, error] {
	return func(yield func(model.AvailabilityRecord, error) bool) {
		if roomID == "" {
			yield(model.AvailabilityRecord{}, model.NewValidationError("room_id is required"))
			return
		}
		if err := r.Validate(); err != nil {
			yield(model.AvailabilityRecord{}, err)
			return
		}
		if l.maxNights > 0 && r.Nights() > l.maxNights {
			yield(model.AvailabilityRecord{}, model.NewValidationError("date range exceeds the maximum number of nights"))
			return
		}

		var (
			missing model.DayKey
			found   bool
		)
		err := utils.RetryRead(ctx, l.retry, func(ctx context.Context) error {
			var err error
			missing, found, err = l.repo.FirstMissingDay(ctx, roomID, r)
			return err
		})
		if err != nil {
			err = classify("list availability", err)
			logFailure(l.logger, "failed to check availability range", err, zap.String("room_id", roomID))
			yield(model.AvailabilityRecord{}, err)
			return
		}
		if found {
			yield(model.AvailabilityRecord{}, model.NewIncompleteRangeError(roomID, missing))
			return
		}

		// 一度でもレコードを渡した後の失敗は再試行しない（重複して渡さないため）
		var (
			yielded int
			stopped bool
			scanErr error
		)
		err = utils.RetryRead(ctx, l.retry, func(ctx context.Context) error {
			err := l.repo.ScanRange(ctx, roomID, r, func(rec model.AvailabilityRecord) bool {
				yielded++
				if !yield(rec, nil) {
					stopped = true
					return false
				}
				return true
			})
			if err != nil && yielded > 0 {
				scanErr = err
				return nil
			}
			return err
		})
		if err == nil {
			err = scanErr
		}
		if err != nil && !stopped {
			err = classify("list availability", err)
			logFailure(l.logger, "failed to read availability range", err, zap.String("room_id", roomID))
			yield(model.AvailabilityRecord{}, err)
		}
	}
}

// CollectRange は ListRange の結果をスライスにまとめます
func (l *Ledger) CollectRange(ctx context.Context, roomID string, r model.DateRange) ([]model.AvailabilityRecord, error) {
	var records []model.AvailabilityRecord
	for rec, err := range l.ListRange(ctx, roomID, r) {
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
