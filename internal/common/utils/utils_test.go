package utils

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestRunWithTimeout(t *testing.T) {
	err := RunWithTimeout(context.Background(), "horizon batch", time.Second, func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)

	err = RunWithTimeout(context.Background(), "horizon batch", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		return ctx.Err()
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "horizon batch")

	boom := errors.New("boom")
	err = RunWithTimeout(context.Background(), "seed batch", time.Second, func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestGetStackWithError(t *testing.T) {
	assert.Nil(t, GetStackWithError(nil))

	base := errors.New("failed")
	err := GetStackWithError(base)
	assert.ErrorIs(t, err, base)
	assert.True(t, strings.Contains(err.Error(), "Stack trace:"))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", driver.ErrBadConn, true},
		{"wrapped bad conn", fmt.Errorf("failed to query: %w", driver.ErrBadConn), true},
		{"connection exception", &pq.Error{Code: "08006"}, true},
		{"admin shutdown", &pq.Error{Code: "57P01"}, true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"deadline", context.DeadlineExceeded, false},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("syntax error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}

	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.True(t, IsCheckViolation(&pq.Error{Code: "23514"}))
	assert.False(t, IsUniqueViolation(errors.New("other")))
}

func TestRetryRead(t *testing.T) {
	policy := RetryPolicy{Attempts: 3, Backoff: time.Millisecond}

	t.Run("一時的な障害は再試行される", func(t *testing.T) {
		calls := 0
		err := RetryRead(context.Background(), policy, func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return driver.ErrBadConn
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("回数上限で諦める", func(t *testing.T) {
		calls := 0
		err := RetryRead(context.Background(), policy, func(ctx context.Context) error {
			calls++
			return driver.ErrBadConn
		})
		assert.ErrorIs(t, err, driver.ErrBadConn)
		assert.Equal(t, 3, calls)
	})

	t.Run("恒久的なエラーは再試行しない", func(t *testing.T) {
		calls := 0
		err := RetryRead(context.Background(), policy, func(ctx context.Context) error {
			calls++
			return errors.New("permanent")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("キャンセルで打ち切る", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := RetryRead(ctx, RetryPolicy{Attempts: 5, Backoff: time.Hour}, func(ctx context.Context) error {
			calls++
			cancel()
			return driver.ErrBadConn
		})
		assert.ErrorIs(t, err, driver.ErrBadConn)
		assert.Equal(t, 1, calls)
	})
}
