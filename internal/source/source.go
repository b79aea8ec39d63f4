// Package source はユーザーレコードのバイト列を取得する入力元を提供する。
// 取得の失敗はすべて*AcquisitionErrorとして返す。
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/verifix/internal/security"
)

// DefaultPath は引数が指定されない場合に読むファイル。
const DefaultPath = "user.json"

// StdinArg は標準入力を表す引数。
const StdinArg = "-"

// Kind は入力元の種別。メトリクスのラベルにも使う。
type Kind string

const (
	KindFile  Kind = "file"
	KindStdin Kind = "stdin"
	KindURL   Kind = "url"
)

// ErrTooLarge は入力が上限サイズを超えた場合のエラー。
var ErrTooLarge = errors.New("input exceeds maximum size")

// Source はユーザーレコードの入力元。
type Source interface {
	Name() string
	Kind() Kind
	Read(ctx context.Context) ([]byte, error)
}

// AcquisitionError は入力を取得できなかったことを表す。呼び出し側では致命的エラーとして扱う。
type AcquisitionError struct {
	Source string
	Kind   Kind
	Err    error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("failed to read user JSON from %s: %v", e.Source, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// Options は入力元の生成設定。
type Options struct {
	Stdin   io.Reader
	Guard   security.URLGuard
	Timeout time.Duration
	MaxSize int64 // 0以下は無制限
	Retries int   // URL取得の再試行回数
	Logger  *slog.Logger
}

// New は引数から入力元を選ぶ。
// "-" は標準入力、http(s)のURLはリモート取得、それ以外はファイルパスとして扱う。
func New(arg string, opts Options) Source {
	switch {
	case arg == StdinArg:
		return &Reader{name: "stdin", r: opts.Stdin, maxSize: opts.MaxSize}
	case isURL(arg):
		guard := opts.Guard
		if guard == nil {
			guard = security.NewURLGuard()
		}
		logger := opts.Logger
		if logger == nil {
			logger = slog.Default()
		}
		return &URL{url: arg, guard: guard, timeout: opts.Timeout, maxSize: opts.MaxSize, retries: opts.Retries, logger: logger}
	case arg == "":
		return &File{path: DefaultPath, maxSize: opts.MaxSize}
	default:
		return &File{path: arg, maxSize: opts.MaxSize}
	}
}

func isURL(arg string) bool {
	lower := strings.ToLower(arg)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// readLimited はmaxSizeを超えないことを確認しながら全体を読む。
func readLimited(r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, maxSize)
	}
	return data, nil
}
