package model

import (
	"time"
)

// LedgerEventType は在庫台帳イベントの種類を表します
type LedgerEventType string

const (
	// LedgerEventSeeded は部屋作成時の初期投入を表します
	LedgerEventSeeded LedgerEventType = "seeded"
	// LedgerEventExtended は予約可能期間の延長を表します
	LedgerEventExtended LedgerEventType = "extended"
	// LedgerEventReserved は枠の確保を表します
	LedgerEventReserved LedgerEventType = "reserved"
	// LedgerEventReleased は枠の解放を表します
	LedgerEventReleased LedgerEventType = "released"
)

// LedgerEvent は在庫台帳の変更イベントです
// availability_eventsテーブルに監査用として永続化され、コミット後にブローカーへ発行されます
type LedgerEvent struct {
	ID        int64           `db:"id" json:"id,omitempty"`
	RoomID    string          `db:"room_id" json:"room_id"`
	Type      LedgerEventType `db:"event_type" json:"type"`
	CheckIn   DayKey          `db:"check_in" json:"check_in"`
	CheckOut  DayKey          `db:"check_out" json:"check_out"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Reference string          `db:"reference" json:"reference,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// NewReservedEvent は予約確定から監査イベントを作成します
func NewReservedEvent(c ReservationConfirmation) LedgerEvent {
	return LedgerEvent{
		RoomID:    c.RoomID,
		Type:      LedgerEventReserved,
		CheckIn:   c.CheckIn,
		CheckOut:  c.CheckOut,
		Quantity:  c.Quantity,
		Reference: c.ID.String(),
		CreatedAt: c.CreatedAt,
	}
}

// NewReleasedEvent は解放要求から監査イベントを作成します
func NewReleasedEvent(intent ReservationIntent, now time.Time) LedgerEvent {
	return LedgerEvent{
		RoomID:    intent.RoomID,
		Type:      LedgerEventReleased,
		CheckIn:   intent.Range.CheckIn,
		CheckOut:  intent.Range.CheckOut,
		Quantity:  intent.Quantity,
		CreatedAt: now,
	}
}

// NewSeededEvent は初期投入・延長のイベントを作成します
// Quantity には1日あたりの総枠数が入ります
func NewSeededEvent(eventType LedgerEventType, roomID string, r DateRange, totalSlots int, now time.Time) LedgerEvent {
	return LedgerEvent{
		RoomID:    roomID,
		Type:      eventType,
		CheckIn:   r.CheckIn,
		CheckOut:  r.CheckOut,
		Quantity:  totalSlots,
		CreatedAt: now,
	}
}

// RoomCreatedEvent は部屋作成時にStep Functionsから渡されるイベントです
type RoomCreatedEvent struct {
	RoomID    string    `json:"room_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SeedInput はシードバッチの入力です
type SeedInput struct {
	Rooms []RoomCreatedEvent `json:"rooms"`
}

// BatchSummary はバッチの処理結果です。Step Functionsのタスク出力になります
type BatchSummary struct {
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	DaysAdded int      `json:"days_added"`
	FailedIDs []string `json:"failed_ids,omitempty"`
}
