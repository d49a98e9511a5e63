package database

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type DB struct {
	*sqlx.DB
}

type Config struct {
	Host     string
	Port     int
	UserName string
	Password string
	DBName   string
	MaxConns int
}

// DSN はlib/pq形式の接続文字列を返します
func (cfg Config) DSN() string {
	// localhostのDBの場合はSSLを無効化
	var sslModeValue string
	if cfg.Host == "localhost" || os.Getenv("DB_HOST") == "localhost" {
		sslModeValue = "disable"
	} else {
		sslModeValue = "require" // 本番環境ではSSLを有効にする
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.UserName,
		cfg.Password,
		cfg.DBName,
		sslModeValue,
	)
}

// NewDB はX-Ray計装済みのPostgreSQL接続を作成します
// 接続のライフサイクルは呼び出し側（main）が管理します
func NewDB(cfg Config) (*DB, error) {
	// X-Ray対応のSQLコンテキストを作成
	db, err := xray.SQLContext("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database with X-Ray: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 25
	}

	// コネクションプールの設定
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	// 接続テスト
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{sqlx.NewDb(db, "postgres")}, nil
}

// EnsureSchema は在庫台帳のテーブルを作成します（存在する場合は何もしません）
func (db *DB) EnsureSchema(ctx context.Context) error {
	ctx, seg := xray.BeginSubsegment(ctx, "DB.EnsureSchema")
	defer seg.Close(nil)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			seg.Close(err)
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
