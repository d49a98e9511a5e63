package utils

import (
	"context"
	"time"
)

// RetryPolicy は読み取り専用操作の再試行設定です
// 更新系の操作には使わないこと（曖昧な失敗後の再実行は二重適用になりうる）
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
	// MaxBackoff を超えて待機時間は伸びません。0なら上限なし
	MaxBackoff time.Duration
}

// RetryRead は fn が一時的な障害で失敗した場合に指数バックオフで再試行します
func RetryRead(ctx context.Context, policy RetryPolicy, fn func(context.Context) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	wait := policy.Backoff

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil || !IsTransient(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}

		wait *= 2
		if policy.MaxBackoff > 0 && wait > policy.MaxBackoff {
			wait = policy.MaxBackoff
		}
	}
	return err
}
