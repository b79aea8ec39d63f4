package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/verifix/internal/security"
)

const defaultFetchTimeout = 10 * time.Second

// URL はHTTP(S)で取得する入力元。宛先はURLGuardで検証する。
type URL struct {
	url     string
	guard   security.URLGuard
	timeout time.Duration
	maxSize int64
	retries int
	logger  *slog.Logger
}

func (u *URL) Name() string { return u.url }
func (u *URL) Kind() Kind   { return KindURL }

// Read はURLを取得する。一時的な失敗（接続エラー、408/429/5xx）は
// retries回まで指数バックオフで再試行する。
func (u *URL) Read(ctx context.Context) ([]byte, error) {
	if err := u.guard.Check(u.url); err != nil {
		return nil, u.fail(err)
	}

	timeout := u.timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	client := u.guard.Client(timeout)

	for attempt := 0; ; attempt++ {
		data, err := u.fetch(ctx, client)
		if err == nil {
			u.logger.Debug("リモートのユーザーレコードを取得しました",
				slog.String("url", u.url),
				slog.Int("size", len(data)),
				slog.Int("attempts", attempt+1),
			)
			return data, nil
		}
		if attempt >= u.retries || !retryable(err) || ctx.Err() != nil {
			return nil, u.fail(err)
		}

		delay := calculateBackoff(attempt)
		u.logger.Warn("リモートのユーザーレコード取得に失敗したため再試行します",
			slog.String("url", u.url),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)
		if err := sleepContext(ctx, delay); err != nil {
			return nil, u.fail(err)
		}
	}
}

func (u *URL) fetch(ctx context.Context, client *http.Client) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if classifyHTTPStatus(resp.StatusCode) != fetchResultOK {
		return nil, &statusError{code: resp.StatusCode}
	}
	if u.maxSize > 0 && resp.ContentLength > u.maxSize {
		return nil, fmt.Errorf("%w (Content-Length %d)", ErrTooLarge, resp.ContentLength)
	}
	return readLimited(resp.Body, u.maxSize)
}

func (u *URL) fail(err error) error {
	return &AcquisitionError{Source: u.url, Kind: KindURL, Err: err}
}
