package utils

import (
	"context"
	"fmt"
	"time"
)

// 指定されたタイムアウト時間内で処理を実行する
// タイムアウトを超えた場合は、コンテキストをキャンセルしてエラーを返す
func RunWithTimeout(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errChan := make(chan error, 1)

	go func() {
		errChan <- fn(ctx)
	}()

	// 処理の完了またはタイムアウトを待機
	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		if ctx.Err() == context.Canceled {
			return fmt.Errorf("%s was cancelled", name)
		}
		return fmt.Errorf("%s timed out after %v", name, timeout)
	}
}
