package utils

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"strings"

	"github.com/lib/pq"
)

// GetStackWithError は、エラーとスタックトレースを組み合わせて返します
func GetStackWithError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w\nStack trace:\n%s", err, debug.Stack())
}

// PostgreSQLのSQLSTATE
const (
	PgUniqueViolation = "23505"
	PgCheckViolation  = "23514"
	pgAdminShutdown   = "57P01"
	pgCannotConnect   = "57P03"
)

// IsUniqueViolation は一意制約違反かを返します
func IsUniqueViolation(err error) bool {
	return pqCode(err) == PgUniqueViolation
}

// IsCheckViolation はCHECK制約違反かを返します
func IsCheckViolation(err error) bool {
	return pqCode(err) == PgCheckViolation
}

// IsTransient は再試行で回復しうるストレージ障害かを返します
// コンテキストのキャンセル・タイムアウトは呼び出し側の判断なので対象外です
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if code := pqCode(err); code != "" {
		// class 08: connection exception
		return strings.HasPrefix(code, "08") || code == pgAdminShutdown || code == pgCannotConnect
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
