package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DecodeErrorKind はstrictデコード失敗の分類。
type DecodeErrorKind string

const (
	KindUnknownField   DecodeErrorKind = "unknown_field"
	KindMissingField   DecodeErrorKind = "missing_field"
	KindTypeMismatch   DecodeErrorKind = "type_mismatch"
	KindUnknownVariant DecodeErrorKind = "unknown_variant"
	KindInvalidValue   DecodeErrorKind = "invalid_value"
)

// DecodeError はドキュメントがユーザーモデルに適合しない場合のエラー。
// Pathは "email_addresses[0].verification.object" のようなドット区切りの位置を表す。
type DecodeError struct {
	Kind   DecodeErrorKind
	Path   string
	Detail string
	// Offset はエラー位置の（該当サブオブジェクト内での）バイトオフセット。不明な場合は0。
	Offset int64
}

// Error はerrorインターフェースを実装する。
func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// withPath はエラーのPathの先頭に親の位置を付与する。
func withPath(err error, prefix string) error {
	var de *DecodeError
	if !errors.As(err, &de) {
		return err
	}
	switch {
	case de.Path == "":
		de.Path = prefix
	case strings.HasPrefix(de.Path, "["):
		de.Path = prefix + de.Path
	default:
		de.Path = prefix + "." + de.Path
	}
	return de
}

// asDecodeError はencoding/jsonのエラーを*DecodeErrorに変換する。
func asDecodeError(err error) error {
	if err == nil {
		return nil
	}

	var de *DecodeError
	if errors.As(err, &de) {
		return de
	}

	var te *json.UnmarshalTypeError
	if errors.As(err, &te) {
		// 埋め込みエイリアス経由のフィールドには "plain." が前置されるため取り除く。
		return &DecodeError{
			Kind:   KindTypeMismatch,
			Path:   strings.TrimPrefix(te.Field, "plain."),
			Detail: fmt.Sprintf("expected %s, got %s", te.Type, te.Value),
			Offset: te.Offset,
		}
	}

	var se *json.SyntaxError
	if errors.As(err, &se) {
		return &DecodeError{Kind: KindInvalidValue, Detail: se.Error(), Offset: se.Offset}
	}

	return &DecodeError{Kind: KindInvalidValue, Detail: err.Error()}
}
