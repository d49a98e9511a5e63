package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DayKeyLayout は日付キーの文字列表現です
const DayKeyLayout = "2006-01-02"

// DayKey は時刻とタイムゾーンを持たない暦日のキーです
// availabilityテーブルとの結合キーとして利用され、永続化・比較は必ずこの型で行います
type DayKey struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf は t のロケーションにおける暦日を返します
func DayOf(t time.Time) DayKey {
	y, m, d := t.Date()
	return DayKey{Year: y, Month: m, Day: d}
}

// Today は loc における現在の暦日を返します
func Today(now func() time.Time, loc *time.Location) DayKey {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return DayOf(now().In(loc))
}

// ParseDayKey は "YYYY-MM-DD" 形式の文字列を解析します
func ParseDayKey(s string) (DayKey, error) {
	t, err := time.Parse(DayKeyLayout, s)
	if err != nil {
		return DayKey{}, fmt.Errorf("invalid day key %q: %w", s, err)
	}
	return DayOf(t), nil
}

// Time はUTCの0時としての時刻を返します
func (k DayKey) Time() time.Time {
	return time.Date(k.Year, k.Month, k.Day, 0, 0, 0, 0, time.UTC)
}

func (k DayKey) String() string {
	if k.IsZero() {
		return ""
	}
	return k.Time().Format(DayKeyLayout)
}

func (k DayKey) IsZero() bool {
	return k == DayKey{}
}

// AddDays は n 日後（負なら前）の日付キーを返します
func (k DayKey) AddDays(n int) DayKey {
	return DayOf(k.Time().AddDate(0, 0, n))
}

// Compare は k < o なら -1、k == o なら 0、k > o なら 1 を返します
func (k DayKey) Compare(o DayKey) int {
	switch {
	case k.Year != o.Year:
		return cmpInt(k.Year, o.Year)
	case k.Month != o.Month:
		return cmpInt(int(k.Month), int(o.Month))
	default:
		return cmpInt(k.Day, o.Day)
	}
}

func (k DayKey) Before(o DayKey) bool { return k.Compare(o) < 0 }
func (k DayKey) After(o DayKey) bool  { return k.Compare(o) > 0 }
func (k DayKey) Equal(o DayKey) bool  { return k == o }

// DaysUntil は k から o までの日数を返します
func (k DayKey) DaysUntil(o DayKey) int {
	return int((o.Time().Unix() - k.Time().Unix()) / (24 * 60 * 60))
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// MarshalJSON は "YYYY-MM-DD" 形式で出力します
func (k DayKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON は "YYYY-MM-DD" 形式のみを受け付けます
func (k *DayKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("day key must be a string: %w", err)
	}
	if s == "" {
		*k = DayKey{}
		return nil
	}
	parsed, err := ParseDayKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Value implements driver.Valuer. The key is bound as a date literal.
func (k DayKey) Value() (driver.Value, error) {
	if k.IsZero() {
		return nil, fmt.Errorf("cannot persist zero day key")
	}
	return k.String(), nil
}

// Scan implements sql.Scanner. Timestamps with a time-of-day are rejected.
func (k *DayKey) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		if v.Hour() != 0 || v.Minute() != 0 || v.Second() != 0 || v.Nanosecond() != 0 {
			return fmt.Errorf("refusing to scan non-normalized timestamp %s as day key", v.Format(time.RFC3339Nano))
		}
		*k = DayOf(v)
		return nil
	case string:
		return k.scanString(v)
	case []byte:
		return k.scanString(string(v))
	case nil:
		return fmt.Errorf("cannot scan NULL into day key")
	default:
		return fmt.Errorf("unsupported type %T for day key", src)
	}
}

func (k *DayKey) scanString(s string) error {
	if len(s) > len(DayKeyLayout) {
		// date列がtimestampとして返された場合 (例: 2024-01-01T00:00:00Z)
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("invalid day key %q: %w", s, err)
		}
		return k.Scan(t)
	}
	parsed, err := ParseDayKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
