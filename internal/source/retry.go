package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// fetchResult はHTTPステータスコードに基づく取得結果の分類。
type fetchResult int

const (
	// fetchResultOK は取得成功（200）。
	fetchResultOK fetchResult = iota
	// fetchResultStop は再試行しても結果が変わらないステータス（404/410/401/403など）。
	fetchResultStop
	// fetchResultRetry は一時的な失敗とみなすステータス（408/429/5xx）。
	fetchResultRetry
)

const (
	// initialBackoff は指数バックオフの初回遅延。
	initialBackoff = 250 * time.Millisecond
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = 4 * time.Second
)

// classifyHTTPStatus はHTTPステータスコードを取得結果に分類する。
func classifyHTTPStatus(statusCode int) fetchResult {
	switch {
	case statusCode == http.StatusOK:
		return fetchResultOK
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusTooManyRequests:
		return fetchResultRetry
	case statusCode >= 500:
		return fetchResultRetry
	default:
		return fetchResultStop
	}
}

// calculateBackoff は失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回250ms、2倍ずつ増加、最大4秒。
func calculateBackoff(failures int) time.Duration {
	delay := initialBackoff
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// statusError は200以外のHTTPステータスを表す。
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.code)
}

// retryable は一時的な失敗かどうかを返す。
// ステータスエラーは分類に従い、サイズ超過以外（接続エラーなど）は再試行対象とする。
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return classifyHTTPStatus(se.code) == fetchResultRetry
	}
	return !errors.Is(err, ErrTooLarge)
}

// sleepContext はdだけ待機する。ctxがキャンセルされた場合はctx.Err()を返す。
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
