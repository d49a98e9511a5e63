package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/lib/pq"
	"github.com/uma-arai/sbcntr-inventory/internal/common/models"
	"github.com/uma-arai/sbcntr-inventory/internal/model"
)

// RoomRepository は部屋情報の参照を担当するインターフェースです
// roomsテーブルは部屋管理側の所有物のため、読み取りのみ行います
type RoomRepository interface {
	GetByID(ctx context.Context, roomID string) (models.Room, error)
	GetByIDs(ctx context.Context, roomIDs []string) (map[string]models.Room, error)
	ListActive(ctx context.Context) ([]models.Room, error)
}

// RoomRepositoryImpl はRoomRepositoryの実装です
type RoomRepositoryImpl struct {
	db *DB
}

// NewRoomRepository は新しいRoomRepositoryを作成します
func NewRoomRepository(db *DB) *RoomRepositoryImpl {
	return &RoomRepositoryImpl{
		db: db,
	}
}

const roomColumns = `id, hostel_id, capacity, is_available, created_at`

// GetByID は指定された部屋IDの部屋を取得します
func (r *RoomRepositoryImpl) GetByID(ctx context.Context, roomID string) (models.Room, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "RoomRepository.GetByID")
	defer seg.Close(nil)

	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1`

	var room models.Room
	err := r.db.QueryRowxContext(ctx, query, roomID).StructScan(&room)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, model.NewRoomNotFoundError(roomID)
	}
	if err != nil {
		seg.Close(err)
		return models.Room{}, fmt.Errorf("failed to get room: %w", err)
	}

	return room, nil
}

// GetByIDs は複数の部屋をまとめて取得します
// 存在しないIDは結果に含まれません
func (r *RoomRepositoryImpl) GetByIDs(ctx context.Context, roomIDs []string) (map[string]models.Room, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "RoomRepository.GetByIDs")
	defer seg.Close(nil)

	rooms := make(map[string]models.Room, len(roomIDs))
	if len(roomIDs) == 0 {
		return rooms, nil
	}

	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = ANY($1)`

	rows, err := r.db.QueryxContext(ctx, query, pq.Array(roomIDs))
	if err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var room models.Room
		if err := rows.StructScan(&room); err != nil {
			seg.Close(err)
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms[room.ID] = room
	}

	if err = rows.Err(); err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("error iterating rooms: %w", err)
	}

	return rooms, nil
}

// ListActive は予約受付中の部屋をID順に取得します
func (r *RoomRepositoryImpl) ListActive(ctx context.Context) ([]models.Room, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "RoomRepository.ListActive")
	defer seg.Close(nil)

	query := `SELECT ` + roomColumns + ` FROM rooms WHERE is_available = TRUE ORDER BY id`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to query active rooms: %w", err)
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var room models.Room
		if err := rows.StructScan(&room); err != nil {
			seg.Close(err)
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, room)
	}

	if err = rows.Err(); err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("error iterating rooms: %w", err)
	}

	return rooms, nil
}
