package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/jmoiron/sqlx"
	"github.com/uma-arai/sbcntr-inventory/internal/model"
)

// LedgerEventRepository は在庫台帳の監査イベントの永続化を担当するインターフェースです
type LedgerEventRepository interface {
	Create(ctx context.Context, tx *sqlx.Tx, event *model.LedgerEvent) error
	ListByRoom(ctx context.Context, roomID string, limit int) ([]model.LedgerEvent, error)
}

// LedgerEventRepositoryImpl は監査イベントの永続化を担当します
type LedgerEventRepositoryImpl struct {
	db *DB
}

// NewLedgerEventRepository は新しいLedgerEventRepositoryを作成します
func NewLedgerEventRepository(db *DB) *LedgerEventRepositoryImpl {
	return &LedgerEventRepositoryImpl{
		db: db,
	}
}

// Create は単一の監査イベントを作成します
// 在庫の更新と同じトランザクションで呼び出されます
func (r *LedgerEventRepositoryImpl) Create(ctx context.Context, tx *sqlx.Tx, event *model.LedgerEvent) error {
	ctx, seg := xray.BeginSubsegment(ctx, "LedgerEventRepository.Create")
	defer seg.Close(nil)

	query := `
		INSERT INTO availability_events (
			room_id, event_type, check_in, check_out, quantity, reference, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
		RETURNING id`

	err := tx.QueryRowContext(ctx,
		query,
		event.RoomID,
		string(event.Type),
		event.CheckIn,
		event.CheckOut,
		event.Quantity,
		event.Reference,
		event.CreatedAt,
	).Scan(&event.ID)

	if err != nil {
		seg.Close(err)
		return fmt.Errorf("failed to create ledger event: %w", err)
	}

	return nil
}

// ListByRoom は指定された部屋の監査イベントを新しい順に取得します
func (r *LedgerEventRepositoryImpl) ListByRoom(ctx context.Context, roomID string, limit int) ([]model.LedgerEvent, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "LedgerEventRepository.ListByRoom")
	defer seg.Close(nil)

	query := `
		SELECT id, room_id, event_type, check_in, check_out, quantity, reference, created_at
		FROM availability_events
		WHERE room_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := r.db.QueryxContext(ctx, query, roomID, limit)
	if err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to query ledger events: %w", err)
	}
	defer rows.Close()

	events := []model.LedgerEvent{}
	for rows.Next() {
		var event model.LedgerEvent
		if err := rows.StructScan(&event); err != nil {
			seg.Close(err)
			return nil, fmt.Errorf("failed to scan ledger event: %w", err)
		}
		events = append(events, event)
	}

	if err = rows.Err(); err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("error iterating ledger events: %w", err)
	}

	return events, nil
}
