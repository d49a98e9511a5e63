package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/jmoiron/sqlx"
	"github.com/uma-arai/sbcntr-inventory/internal/common/utils"
	"github.com/uma-arai/sbcntr-inventory/internal/model"
)

// AvailabilityRepository は在庫台帳（部屋×日付ごとの空き枠）の永続化を担当するインターフェースです
//
// 更新系のメソッドはすべて単一トランザクションで完結し、途中の状態が外部から見えることはありません。
// 監査イベントが渡された場合は同じトランザクションで書き込みます。
type AvailabilityRepository interface {
	Get(ctx context.Context, roomID string, day model.DayKey) (model.AvailabilityRecord, error)
	FirstMissingDay(ctx context.Context, roomID string, r model.DateRange) (model.DayKey, bool, error)
	ScanRange(ctx context.Context, roomID string, r model.DateRange, fn func(model.AvailabilityRecord) bool) error
	MaxDate(ctx context.Context, roomID string) (model.DayKey, bool, error)
	InsertRange(ctx context.Context, roomID string, r model.DateRange, totalSlots int, now time.Time, audit *model.LedgerEvent) error
	InsertMissingRange(ctx context.Context, roomID string, r model.DateRange, totalSlots int, now time.Time, audit *model.LedgerEvent) (int, error)
	ReserveRange(ctx context.Context, intent model.ReservationIntent, now time.Time, audit *model.LedgerEvent) ([]model.AvailabilityRecord, error)
	ReleaseRange(ctx context.Context, intent model.ReservationIntent, now time.Time, audit *model.LedgerEvent) ([]model.AvailabilityRecord, error)
}

// AvailabilityRepositoryImpl はPostgreSQLによるAvailabilityRepositoryの実装です
type AvailabilityRepositoryImpl struct {
	db     *DB
	events LedgerEventRepository
}

// NewAvailabilityRepository は新しいAvailabilityRepositoryを作成します
func NewAvailabilityRepository(db *DB, events LedgerEventRepository) *AvailabilityRepositoryImpl {
	return &AvailabilityRepositoryImpl{
		db:     db,
		events: events,
	}
}

const availabilityColumns = `room_id, date, total_slots, available_slots, created_at, updated_at`

// Get は指定された部屋・日付の在庫を取得します
// レコードがない場合は「在庫未設定」としてNotFoundを返します
func (r *AvailabilityRepositoryImpl) Get(ctx context.Context, roomID string, day model.DayKey) (model.AvailabilityRecord, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "AvailabilityRepository.Get")
	defer seg.Close(nil)

	query := `SELECT ` + availabilityColumns + ` FROM availability WHERE room_id = $1 AND date = $2`

	var rec model.AvailabilityRecord
	err := r.db.QueryRowxContext(ctx, query, roomID, day).StructScan(&rec)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AvailabilityRecord{}, model.NewNotFoundError(roomID, day)
	}
	if err != nil {
		seg.Close(err)
		return model.AvailabilityRecord{}, fmt.Errorf("failed to get availability: %w", err)
	}

	return rec, nil
}

// FirstMissingDay は区間内で在庫レコードのない最初の日を返します
// 全日揃っている場合は false を返します
func (r *AvailabilityRepositoryImpl) FirstMissingDay(ctx context.Context, roomID string, dr model.DateRange) (model.DayKey, bool, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "AvailabilityRepository.FirstMissingDay")
	defer seg.Close(nil)

	query := `
		SELECT CAST(d AS date) AS day
		FROM generate_series(CAST($2 AS date), CAST($3 AS date) - 1, interval '1 day') AS d
		WHERE NOT EXISTS (
			SELECT 1 FROM availability a
			WHERE a.room_id = $1 AND a.date = CAST(d AS date)
		)
		ORDER BY d
		LIMIT 1`

	var missing model.DayKey
	err := r.db.QueryRowxContext(ctx, query, roomID, dr.CheckIn, dr.CheckOut).Scan(&missing)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DayKey{}, false, nil
	}
	if err != nil {
		seg.Close(err)
		return model.DayKey{}, false, fmt.Errorf("failed to find missing day: %w", err)
	}

	return missing, true, nil
}

// ScanRange は区間内のレコードを日付の昇順に fn へ渡します
// fn が false を返した時点で読み取りを打ち切ります
func (r *AvailabilityRepositoryImpl) ScanRange(ctx context.Context, roomID string, dr model.DateRange, fn func(model.AvailabilityRecord) bool) error {
	ctx, seg := xray.BeginSubsegment(ctx, "AvailabilityRepository.ScanRange")
	defer seg.Close(nil)

	query := `
		SELECT ` + availabilityColumns + `
		FROM availability
		WHERE room_id = $1 AND date >= $2 AND date < $3
		ORDER BY date ASC`

	rows, err := r.db.QueryxContext(ctx, query, roomID, dr.CheckIn, dr.CheckOut)
	if err != nil {
		seg.Close(err)
		return fmt.Errorf("failed to query availability range: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec model.AvailabilityRecord
		if err := rows.StructScan(&rec); err != nil {
			seg.Close(err)
			return fmt.Errorf("failed to scan availability row: %w", err)
		}
		if !fn(rec) {
			return nil
		}
	}

	if err = rows.Err(); err != nil {
		seg.Close(err)
		return fmt.Errorf("error iterating availability rows: %w", err)
	}

	return nil
}

// MaxDate は部屋の在庫が存在する最後の日を返します
func (r *AvailabilityRepositoryImpl) MaxDate(ctx context.Context, roomID string) (model.DayKey, bool, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "AvailabilityRepository.MaxDate")
	defer seg.Close(nil)

	query := `SELECT MAX(date) FROM availability WHERE room_id = $1`

	var maxDate sql.NullTime
	if err := r.db.QueryRowxContext(ctx, query, roomID).Scan(&maxDate); err != nil {
		seg.Close(err)
		return model.DayKey{}, false, fmt.Errorf("failed to get max availability date: %w", err)
	}
	if !maxDate.Valid {
		return model.DayKey{}, false, nil
	}

	return model.DayOf(maxDate.Time), true, nil
}

// 区間の各日に total = available = totalSlots の行を作る
const insertRangeQuery = `
	INSERT INTO availability (
		room_id, date, total_slots, available_slots, created_at, updated_at
	)
	SELECT :room_id, CAST(d AS date), :total_slots, :total_slots, :now, :now
	FROM generate_series(CAST(:check_in AS date), CAST(:check_out AS date) - 1, interval '1 day') AS d`

func insertRangeArgs(roomID string, dr model.DateRange, totalSlots int, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"room_id":     roomID,
		"total_slots": totalSlots,
		"now":         now,
		"check_in":    dr.CheckIn,
		"check_out":   dr.CheckOut,
	}
}

// InsertRange は区間の全日を一括で作成します
// 既存の日がひとつでもあればConflictErrorを返し、何も作成しません
func (r *AvailabilityRepositoryImpl) InsertRange(ctx context.Context, roomID string, dr model.DateRange, totalSlots int, now time.Time, audit *model.LedgerEvent) error {
	ctx, seg := xray.BeginSubsegment(ctx, "AvailabilityRepository.InsertRange")
	defer seg.Close(nil)

	err := r.db.RunInTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.NamedExecContext(ctx, insertRangeQuery, insertRangeArgs(roomID, dr, totalSlots, now))
		if err != nil {
			if utils.IsUniqueViolation(err) {
				return model.NewRangeConflictError(roomID, dr, err)
			}
			return fmt.Errorf("failed to insert availability: %w", err)
		}

		inserted, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if int(inserted) != dr.Nights() {
			return fmt.Errorf("inserted %d availability rows, expected %d", inserted, dr.Nights())
		}

		if audit != nil {
			return r.events.Create(ctx, tx, audit)
		}
		return nil
	})
	if err != nil {
		seg.Close(err)
		return err
	}

	return nil
}

// InsertMissingRange は区間のうち存在しない日だけを作成し、作成した日数を返します
// 並行実行や再実行があっても既存の行には触れません
func (r *AvailabilityRepositoryImpl) InsertMissingRange(ctx context.Context, roomID string, dr model.DateRange, totalSlots int, now time.Time, audit *model.LedgerEvent) (int, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "AvailabilityRepository.InsertMissingRange")
	defer seg.Close(nil)

	query := insertRangeQuery + `
	ON CONFLICT ON CONSTRAINT availability_room_date_key DO NOTHING`

	var inserted int
	err := r.db.RunInTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.NamedExecContext(ctx, query, insertRangeArgs(roomID, dr, totalSlots, now))
		if err != nil {
			return fmt.Errorf("failed to insert missing availability: %w", err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted = int(n)

		if audit != nil && inserted > 0 {
			return r.events.Create(ctx, tx, audit)
		}
		return nil
	})
	if err != nil {
		seg.Close(err)
		return 0, err
	}

	return inserted, nil
}

// lockRange は区間の行を日付の昇順で行ロックして取得し、欠けている日がないかを検証します
// 昇順でロックするため、重なる区間同士でもデッドロックしません
func lockRange(ctx context.Context, tx *sqlx.Tx, intent model.ReservationIntent) ([]model.AvailabilityRecord, error) {
	query := `
		SELECT ` + availabilityColumns + `
		FROM availability
		WHERE room_id = $1 AND date >= $2 AND date < $3
		ORDER BY date ASC
		FOR UPDATE`

	var records []model.AvailabilityRecord
	if err := tx.SelectContext(ctx, &records, query, intent.RoomID, intent.Range.CheckIn, intent.Range.CheckOut); err != nil {
		return nil, fmt.Errorf("failed to lock availability range: %w", err)
	}

	for i, day := range intent.Range.Days() {
		if i >= len(records) || !records[i].Date.Equal(day) {
			return nil, model.NewIncompleteRangeError(intent.RoomID, day)
		}
	}
	return records, nil
}

// applyDelta は区間の全日に delta を加算し、更新後の行を返します
// guard 条件に合わない行があれば更新件数が一致しないためエラーになります
func applyDelta(ctx context.Context, tx *sqlx.Tx, intent model.ReservationIntent, delta int, guard string, now time.Time) ([]model.AvailabilityRecord, error) {
	query := `
		UPDATE availability
		SET available_slots = available_slots + $1,
			updated_at = $2
		WHERE room_id = $3 AND date >= $4 AND date < $5
		AND ` + guard + `
		RETURNING ` + availabilityColumns

	var updated []model.AvailabilityRecord
	if err := tx.SelectContext(ctx, &updated, query, delta, now, intent.RoomID, intent.Range.CheckIn, intent.Range.CheckOut); err != nil {
		if utils.IsCheckViolation(err) {
			return nil, fmt.Errorf("availability invariant rejected the update: %w", err)
		}
		return nil, fmt.Errorf("failed to update availability: %w", err)
	}

	if len(updated) != intent.Range.Nights() {
		return nil, fmt.Errorf("updated %d availability rows, expected %d", len(updated), intent.Range.Nights())
	}

	sort.Slice(updated, func(i, j int) bool {
		return updated[i].Date.Before(updated[j].Date)
	})
	return updated, nil
}

// ReserveRange は区間の全日から quantity 枠を確保します
// 1日でも不足していれば何も変更せずにInsufficientAvailabilityErrorを返します
func (r *AvailabilityRepositoryImpl) ReserveRange(ctx context.Context, intent model.ReservationIntent, now time.Time, audit *model.LedgerEvent) ([]model.AvailabilityRecord, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "AvailabilityRepository.ReserveRange")
	defer seg.Close(nil)

	var updated []model.AvailabilityRecord
	err := r.db.RunInTx(ctx, func(tx *sqlx.Tx) error {
		locked, err := lockRange(ctx, tx, intent)
		if err != nil {
			return err
		}

		for _, rec := range locked {
			if rec.AvailableSlots < intent.Quantity {
				return model.NewInsufficientAvailabilityError(intent.RoomID, rec.Date, intent.Quantity, rec.AvailableSlots)
			}
		}

		updated, err = applyDelta(ctx, tx, intent, -intent.Quantity, "available_slots + $1 >= 0", now)
		if err != nil {
			return err
		}

		if audit != nil {
			return r.events.Create(ctx, tx, audit)
		}
		return nil
	})
	if err != nil {
		seg.Close(err)
		return nil, err
	}

	return updated, nil
}

// ReleaseRange は区間の全日に quantity 枠を戻します
// 総枠数を超える日があれば何も変更せずにReleaseOverflowErrorを返します
func (r *AvailabilityRepositoryImpl) ReleaseRange(ctx context.Context, intent model.ReservationIntent, now time.Time, audit *model.LedgerEvent) ([]model.AvailabilityRecord, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "AvailabilityRepository.ReleaseRange")
	defer seg.Close(nil)

	var updated []model.AvailabilityRecord
	err := r.db.RunInTx(ctx, func(tx *sqlx.Tx) error {
		locked, err := lockRange(ctx, tx, intent)
		if err != nil {
			return err
		}

		for _, rec := range locked {
			if intent.Quantity > rec.TotalSlots-rec.AvailableSlots {
				return model.NewReleaseOverflowError(intent.RoomID, rec.Date, intent.Quantity, rec.AvailableSlots, rec.TotalSlots)
			}
		}

		updated, err = applyDelta(ctx, tx, intent, intent.Quantity, "available_slots + $1 <= total_slots", now)
		if err != nil {
			return err
		}

		if audit != nil {
			return r.events.Create(ctx, tx, audit)
		}
		return nil
	})
	if err != nil {
		seg.Close(err)
		return nil, err
	}

	return updated, nil
}
