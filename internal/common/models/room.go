package models

import "time"

// Room は部屋管理サービスが所有する部屋情報です
// 在庫台帳からは参照のみ行い、Capacity は初期投入時の総枠数の上限として使います
type Room struct {
	ID          string    `db:"id" json:"id"`
	HostelID    string    `db:"hostel_id" json:"hostel_id"`
	Capacity    int       `db:"capacity" json:"capacity"`
	IsAvailable bool      `db:"is_available" json:"is_available"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
