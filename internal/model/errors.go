package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// 原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, input, system
	Action   string // 利用者向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidJSON     = "INVALID_JSON"
	ErrCodeEmptyBody       = "EMPTY_BODY"
	ErrCodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	ErrCodeRateLimited     = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// NewInvalidJSONError はJSON構文エラーを生成する。
func NewInvalidJSONError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidJSON,
		Message:  fmt.Sprintf("リクエストボディをJSONとして解析できませんでした: %s", reason),
		Category: "input",
		Action:   "ユーザーレコードのJSONが正しい形式か確認してください。",
	}
}

// NewEmptyBodyError は空のリクエストボディに対するエラーを生成する。
func NewEmptyBodyError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyBody,
		Message:  "リクエストボディが空です。",
		Category: "input",
		Action:   "ユーザーレコードのJSONをリクエストボディに指定してください。",
	}
}

// NewPayloadTooLargeError はサイズ上限超過エラーを生成する。
func NewPayloadTooLargeError(limit int64) *APIError {
	return &APIError{
		Code:     ErrCodePayloadTooLarge,
		Message:  fmt.Sprintf("リクエストボディが上限（%dバイト）を超えています。", limit),
		Category: "validation",
		Action:   "1件のユーザーレコードのみを送信してください。",
	}
}

// NewRateLimitError はレート制限超過エラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
