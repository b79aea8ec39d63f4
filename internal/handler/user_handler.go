// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/hitoshi/verifix/internal/document"
	"github.com/hitoshi/verifix/internal/inspect"
	"github.com/hitoshi/verifix/internal/middleware"
	"github.com/hitoshi/verifix/internal/model"
	"github.com/hitoshi/verifix/internal/normalize"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultMaxBodySize はリクエストボディの既定の上限（5MB）。
const DefaultMaxBodySize int64 = 5 << 20

// InspectServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type InspectServiceInterface interface {
	// Inspect は正規化とstrictデコードを行う。構文エラーの場合のみエラーを返す。
	Inspect(ctx context.Context, data []byte) (*inspect.Result, error)
	// Normalize は正規化のみを行う。
	Normalize(ctx context.Context, data []byte) (*document.Document, normalize.Result, error)
}

// UserHandler はユーザーレコード検査のHTTPハンドラー。
type UserHandler struct {
	service     InspectServiceInterface
	maxBodySize int64
}

// NewUserHandler はUserHandlerを生成する。maxBodySizeが0以下の場合は既定値を使う。
func NewUserHandler(service InspectServiceInterface, maxBodySize int64) *UserHandler {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	return &UserHandler{service: service, maxBodySize: maxBodySize}
}

// normalizeResponse は正規化APIのレスポンス。
type normalizeResponse struct {
	Document jsoniter.RawMessage `json:"document"`
	Removed  []string            `json:"removed"`
	Repairs  []normalize.Repair  `json:"repairs"`
}

// Inspect はユーザーレコードを正規化してstrictデコードし、結果を返す。
// デコード失敗も正常な検査結果として200で返す。
// POST /api/users/inspect
func (h *UserHandler) Inspect(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	res, err := h.service.Inspect(r.Context(), body)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res.Response())
}

// Normalize はユーザーレコードを正規化し、修復後のドキュメントを返す。
// POST /api/users/normalize
func (h *UserHandler) Normalize(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	doc, changes, err := h.service.Normalize(r.Context(), body)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	resp := normalizeResponse{
		Document: doc.Bytes(),
		Removed:  changes.Removed,
		Repairs:  changes.Repairs,
	}
	if resp.Removed == nil {
		resp.Removed = []string{}
	}
	if resp.Repairs == nil {
		resp.Repairs = []normalize.Repair{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// readBody はサイズ上限付きでボディを読み込む。
// 失敗時はエラーレスポンスを書き込んでfalseを返す。
func (h *UserHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewPayloadTooLargeError(h.maxBodySize))
			return nil, false
		}
		slog.Warn("リクエストボディの読み取りに失敗しました",
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidJSONError("ボディを読み取れません"))
		return nil, false
	}
	if len(body) == 0 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewEmptyBodyError())
		return nil, false
	}
	return body, true
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
func (h *UserHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var syntaxErr *document.SyntaxError
	if errors.As(err, &syntaxErr) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidJSONError(syntaxErr.Error()))
		return
	}

	slog.Error("検査処理でエラーが発生しました",
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
