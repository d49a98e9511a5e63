package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/jmoiron/sqlx"
)

// DB はリポジトリが使うX-Ray計装付きの接続ラッパーです
// 接続自体は main で作成し、ここでは所有しません
type DB struct {
	*sqlx.DB
}

// NewDB は既存の接続からDBを作成します
func NewDB(conn *sqlx.DB) *DB {
	return &DB{DB: conn}
}

// BeginTx starts a new transaction
func (db *DB) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "DB.BeginTx")
	defer seg.Close(nil)

	return db.DB.BeginTxx(ctx, nil)
}

// RunInTx は fn をひとつのトランザクション内で実行します
// fn がエラーを返した場合はロールバックし、元のエラーを返します
func (db *DB) RunInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("rollback failed: %v, original error: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// QueryxContext wraps sqlx.DB.QueryxContext with X-Ray tracing
func (db *DB) QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "DB.Queryx")
	if seg == nil {
		return db.DB.QueryxContext(ctx, query, args...)
	}
	defer seg.Close(nil)

	// クエリをメタデータとして追加
	if err := seg.AddMetadata("query", query); err != nil {
		log.Printf("Failed to add query metadata: %v", err)
	}

	rows, err := db.DB.QueryxContext(ctx, query, args...)
	if err != nil {
		seg.Close(err)
		return nil, err
	}

	return rows, nil
}

// QueryRowxContext wraps sqlx.DB.QueryRowxContext with X-Ray tracing
// 行が存在しない場合はエラーとして記録しません
func (db *DB) QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row {
	ctx, seg := xray.BeginSubsegment(ctx, "DB.QueryRowx")
	if seg == nil {
		return db.DB.QueryRowxContext(ctx, query, args...)
	}

	if err := seg.AddMetadata("query", query); err != nil {
		log.Printf("Failed to add query metadata: %v", err)
	}

	row := db.DB.QueryRowxContext(ctx, query, args...)
	if err := row.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		seg.Close(err)
		return row
	}
	seg.Close(nil)
	return row
}
