package model

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// MaxSlots は1日あたりの枠数の上限です（availabilityテーブルのINTEGER列に合わせる）
const MaxSlots = math.MaxInt32

// AvailabilityRecord は1部屋・1日分の予約可能在庫です
// availabilityテーブルの1行と一致します
type AvailabilityRecord struct {
	RoomID         string    `db:"room_id" json:"room_id"`
	Date           DayKey    `db:"date" json:"date"`
	TotalSlots     int       `db:"total_slots" json:"total_slots"`
	AvailableSlots int       `db:"available_slots" json:"available_slots"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Valid は 0 <= AvailableSlots <= TotalSlots を満たすかを返します
func (r AvailabilityRecord) Valid() bool {
	return r.TotalSlots >= 0 && r.AvailableSlots >= 0 && r.AvailableSlots <= r.TotalSlots
}

// BookedSlots は予約済みの枠数です
func (r AvailabilityRecord) BookedSlots() int {
	return r.TotalSlots - r.AvailableSlots
}

// NewAvailabilityRecord は全枠が空いている新しいレコードを作成します
func NewAvailabilityRecord(roomID string, day DayKey, totalSlots int, now time.Time) AvailabilityRecord {
	return AvailabilityRecord{
		RoomID:         roomID,
		Date:           day,
		TotalSlots:     totalSlots,
		AvailableSlots: totalSlots,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// DateRange は [CheckIn, CheckOut) の半開区間です
type DateRange struct {
	CheckIn  DayKey `json:"check_in"`
	CheckOut DayKey `json:"check_out"`
}

// NewDateRange は時刻を暦日に正規化して区間を作成します
func NewDateRange(checkIn, checkOut time.Time) DateRange {
	return DateRange{CheckIn: DayOf(checkIn), CheckOut: DayOf(checkOut)}
}

// Validate は CheckIn < CheckOut であることを検証します
func (r DateRange) Validate() error {
	if r.CheckIn.IsZero() || r.CheckOut.IsZero() {
		return NewValidationError("check_in and check_out are required")
	}
	if !r.CheckIn.Before(r.CheckOut) {
		return NewValidationError("check_in must be before check_out")
	}
	return nil
}

// Nights は区間に含まれる日数です
func (r DateRange) Nights() int {
	if !r.CheckIn.Before(r.CheckOut) {
		return 0
	}
	return r.CheckIn.DaysUntil(r.CheckOut)
}

// Days は区間に含まれる日付キーを昇順で返します
func (r DateRange) Days() []DayKey {
	n := r.Nights()
	days := make([]DayKey, 0, n)
	for i := 0; i < n; i++ {
		days = append(days, r.CheckIn.AddDays(i))
	}
	return days
}

// Contains は day が区間内にあるかを返します
func (r DateRange) Contains(day DayKey) bool {
	return !day.Before(r.CheckIn) && day.Before(r.CheckOut)
}

func (r DateRange) String() string {
	return "[" + r.CheckIn.String() + ", " + r.CheckOut.String() + ")"
}

// ReservationIntent は予約・解放操作の入力です（永続化されません）
type ReservationIntent struct {
	RoomID   string    `json:"room_id"`
	Range    DateRange `json:"range"`
	Quantity int       `json:"quantity"`
}

// Validate はストレージにアクセスする前に入力の形を検証します
func (i ReservationIntent) Validate(maxNights int) error {
	if i.RoomID == "" {
		return NewValidationError("room_id is required")
	}
	if i.Quantity <= 0 {
		return NewValidationError("quantity must be greater than 0")
	}
	if i.Quantity > MaxSlots {
		return NewValidationError("quantity exceeds the maximum number of slots")
	}
	if err := i.Range.Validate(); err != nil {
		return err
	}
	if maxNights > 0 && i.Range.Nights() > maxNights {
		return NewValidationError("date range exceeds the maximum number of nights")
	}
	return nil
}

// ReservationConfirmation は予約成功時の結果です
type ReservationConfirmation struct {
	ID        uuid.UUID            `json:"id"`
	RoomID    string               `json:"room_id"`
	CheckIn   DayKey               `json:"check_in"`
	CheckOut  DayKey               `json:"check_out"`
	Quantity  int                  `json:"quantity"`
	Dates     []DayKey             `json:"dates"`
	Records   []AvailabilityRecord `json:"records"`
	CreatedAt time.Time            `json:"created_at"`
}

// ReleaseAck は解放成功時の結果です
type ReleaseAck struct {
	RoomID   string               `json:"room_id"`
	CheckIn  DayKey               `json:"check_in"`
	CheckOut DayKey               `json:"check_out"`
	Quantity int                  `json:"quantity"`
	Records  []AvailabilityRecord `json:"records"`
}
