// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader はリクエストIDを受け渡すヘッダー。
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLen はクライアント指定のリクエストIDとして受け入れる最大長。
const maxRequestIDLen = 64

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var requestIDContextKey = contextKey("request_id")

// NewRequestIDMiddleware はリクエストごとにIDを割り当てるミドルウェアを返す。
// クライアントが妥当なX-Request-IDを送った場合はそれを引き継ぎ、それ以外はUUIDを生成する。
// IDはレスポンスヘッダーにも設定する。
func NewRequestIDMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if !validRequestID(id) {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			ctx := context.WithValue(r.Context(), requestIDContextKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFromContext はリクエストコンテキストからリクエストIDを取得する。
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}
