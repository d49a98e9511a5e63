package database

// schema は在庫台帳が所有するテーブルのDDLです
// roomsテーブルは部屋管理サービスの所有物のため、ここでは参照のみ想定しています
var schema = []string{
	`CREATE TABLE IF NOT EXISTS availability (
		room_id         TEXT        NOT NULL,
		date            DATE        NOT NULL,
		total_slots     INTEGER     NOT NULL CHECK (total_slots >= 0),
		available_slots INTEGER     NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT availability_room_date_key UNIQUE (room_id, date),
		CONSTRAINT availability_slots_check CHECK (available_slots >= 0 AND available_slots <= total_slots)
	)`,
	`CREATE TABLE IF NOT EXISTS availability_events (
		id         BIGSERIAL   PRIMARY KEY,
		room_id    TEXT        NOT NULL,
		event_type TEXT        NOT NULL,
		check_in   DATE        NOT NULL,
		check_out  DATE        NOT NULL,
		quantity   INTEGER     NOT NULL,
		reference  TEXT        NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS availability_events_room_idx ON availability_events (room_id, created_at DESC)`,
}
