package inventory

import (
	"github.com/uma-arai/sbcntr-inventory/internal/model"
	"go.uber.org/zap"
)

// classify はドメインエラーをそのまま返し、それ以外をストレージ障害として包みます
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if model.KindOf(err) != model.KindInternal {
		return err
	}
	return model.NewStorageError(op, err)
}

// logFailure はエラー種別に応じたレベルで失敗を記録します
func logFailure(logger *zap.Logger, msg string, err error, fields ...zap.Field) {
	kind := model.KindOf(err)
	fields = append(fields, zap.String("kind", string(kind)), zap.Error(err))

	switch kind {
	case model.KindValidation, model.KindNotFound:
		logger.Debug(msg, fields...)
	case model.KindReleaseOverflow, model.KindStorage, model.KindInternal:
		logger.Error(msg, fields...)
	default:
		logger.Info(msg, fields...)
	}
}

func intentFields(intent model.ReservationIntent) []zap.Field {
	return []zap.Field{
		zap.String("room_id", intent.RoomID),
		zap.String("check_in", intent.Range.CheckIn.String()),
		zap.String("check_out", intent.Range.CheckOut.String()),
		zap.Int("quantity", intent.Quantity),
	}
}
