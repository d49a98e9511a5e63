package model

import (
	"errors"
	"fmt"
)

// ErrorKind は機械可読なエラー種別です。APIレスポンスにそのまま出力されます
type ErrorKind string

const (
	KindValidation               ErrorKind = "validation"
	KindUnauthorized             ErrorKind = "unauthorized"
	KindForbidden                ErrorKind = "forbidden"
	KindNotFound                 ErrorKind = "not_found"
	KindConflict                 ErrorKind = "conflict"
	KindIncompleteRange          ErrorKind = "incomplete_range"
	KindInsufficientAvailability ErrorKind = "insufficient_availability"
	KindReleaseOverflow          ErrorKind = "release_overflow"
	KindUnsupportedOperation     ErrorKind = "unsupported_operation"
	KindStorage                  ErrorKind = "storage_unavailable"
	KindInternal                 ErrorKind = "internal"
)

// errors.Is で種別を判定するための番兵です
var (
	ErrValidation               = &Error{Kind: KindValidation}
	ErrUnauthorized             = &Error{Kind: KindUnauthorized}
	ErrForbidden                = &Error{Kind: KindForbidden}
	ErrNotFound                 = &Error{Kind: KindNotFound}
	ErrConflict                 = &Error{Kind: KindConflict}
	ErrIncompleteRange          = &Error{Kind: KindIncompleteRange}
	ErrInsufficientAvailability = &Error{Kind: KindInsufficientAvailability}
	ErrReleaseOverflow          = &Error{Kind: KindReleaseOverflow}
	ErrUnsupportedOperation     = &Error{Kind: KindUnsupportedOperation}
	ErrStorage                  = &Error{Kind: KindStorage}
)

// Error は在庫台帳のドメインエラーです
type Error struct {
	Kind    ErrorKind
	Message string
	RoomID  string
	Date    *DayKey
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.RoomID != "" {
		msg = fmt.Sprintf("%s (room=%s", msg, e.RoomID)
		if e.Date != nil {
			msg += ", date=" + e.Date.String()
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is は種別が一致すれば true を返します
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// PublicMessage は外部に公開してよいメッセージです
// ストレージ由来の詳細は含めません
func (e *Error) PublicMessage() string {
	switch e.Kind {
	case KindStorage, KindInternal:
		return "the inventory store is temporarily unavailable"
	case KindReleaseOverflow:
		return "release would exceed the total slots for a day; the request was not applied"
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Date != nil {
		msg += " on " + e.Date.String()
	}
	return msg
}

// KindOf はエラーの種別を返します。ドメインエラーでない場合は internal です
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func dayPtr(d DayKey) *DayKey {
	if d.IsZero() {
		return nil
	}
	return &d
}

func NewValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func NewUnauthorizedError(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func NewForbiddenError(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

// NewNotFoundError は在庫が未設定であることを表します（空き0とは区別されます）
func NewNotFoundError(roomID string, day DayKey) *Error {
	return &Error{Kind: KindNotFound, Message: "no inventory configured", RoomID: roomID, Date: dayPtr(day)}
}

func NewConflictError(roomID string, day DayKey, err error) *Error {
	return &Error{Kind: KindConflict, Message: "availability record already exists", RoomID: roomID, Date: dayPtr(day), Err: err}
}

// NewRangeConflictError は区間のどこかに既存の日があることを表します
// どの日が重複したかはDBの一括INSERTからは分からないため、日付は付けません
func NewRangeConflictError(roomID string, r DateRange, err error) *Error {
	return &Error{Kind: KindConflict, Message: "availability records already exist in " + r.String(), RoomID: roomID, Err: err}
}

// NewIncompleteRangeError は区間内に在庫レコードのない日があることを表します
func NewIncompleteRangeError(roomID string, missing DayKey) *Error {
	return &Error{Kind: KindIncompleteRange, Message: "no inventory configured for a day in range", RoomID: roomID, Date: dayPtr(missing)}
}

func NewInsufficientAvailabilityError(roomID string, day DayKey, requested, available int) *Error {
	return &Error{
		Kind:    KindInsufficientAvailability,
		Message: fmt.Sprintf("insufficient availability: requested %d, available %d", requested, available),
		RoomID:  roomID,
		Date:    dayPtr(day),
	}
}

// NewReleaseOverflowError は呼び出し側の計上ミスを表します
func NewReleaseOverflowError(roomID string, day DayKey, quantity, available, total int) *Error {
	return &Error{
		Kind:    KindReleaseOverflow,
		Message: fmt.Sprintf("release of %d would exceed total slots (available %d, total %d)", quantity, available, total),
		RoomID:  roomID,
		Date:    dayPtr(day),
	}
}

func NewUnsupportedOperationError(op string) *Error {
	return &Error{Kind: KindUnsupportedOperation, Message: op + " is not supported"}
}

// NewStorageError はストレージ障害をラップします
func NewStorageError(op string, err error) *Error {
	return &Error{Kind: KindStorage, Message: "failed to " + op, Err: err}
}

// NewRoomNotFoundError は部屋が存在しないか、予約受付を停止していることを表します
func NewRoomNotFoundError(roomID string) *Error {
	return &Error{Kind: KindNotFound, Message: "room not found", RoomID: roomID}
}
