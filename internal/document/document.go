// Package document は順序を保持したJSONドキュメントを提供する。
// 読み取りはgjson、書き換えはRFC 6902 JSON Patchで行い、
// キーの並びや未変更部分のバイト表現を維持する。
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/tidwall/gjson"
)

// SyntaxError は入力がJSONとして解釈できない場合のエラー。
// ドキュメントツリーを構築できないため、呼び出し側では致命的エラーとして扱う。
type SyntaxError struct {
	Offset int64
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *SyntaxError) Error() string {
	if e.Offset > 0 {
		return fmt.Sprintf("invalid JSON at byte %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("invalid JSON: %v", e.Err)
}

// Unwrap は元のエラーを返す。
func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// Document はJSONドキュメント本体を保持する。
// 1回のパイプライン実行が排他的に所有し、他と共有しない。
type Document struct {
	raw []byte
}

// Parse はバイト列を検証してDocumentを生成する。
// 構文エラーの場合は*SyntaxErrorを返す。
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &SyntaxError{Err: errors.New("empty document")}
	}

	var check json.RawMessage
	if err := json.Unmarshal(data, &check); err != nil {
		var se *json.SyntaxError
		if errors.As(err, &se) {
			return nil, &SyntaxError{Offset: se.Offset, Err: err}
		}
		return nil, &SyntaxError{Err: err}
	}

	raw := make([]byte, len(data))
	copy(raw, data)
	return &Document{raw: raw}, nil
}

// MustParse はParseのテスト・定数用ラッパー。構文エラーの場合はpanicする。
func MustParse(s string) *Document {
	d, err := Parse([]byte(s))
	if err != nil {
		panic(err)
	}
	return d
}

// Bytes は現在のドキュメントのバイト表現を返す。
func (d *Document) Bytes() []byte {
	return d.raw
}

// String は現在のドキュメントを文字列で返す。
func (d *Document) String() string {
	return string(d.raw)
}

// Root はドキュメント全体をgjson.Resultとして返す。
func (d *Document) Root() gjson.Result {
	return gjson.ParseBytes(d.raw)
}

// Get はキーのセグメント列で指定した値を返す。
// 各セグメントはgjsonのパス記法としてエスケープされるため、
// キーに "." や "*" が含まれていてもそのまま指定できる。
func (d *Document) Get(segments ...string) gjson.Result {
	return gjson.GetBytes(d.raw, Path(segments...))
}

// Has は指定したセグメント列の値が存在するかを返す。
func (d *Document) Has(segments ...string) bool {
	return d.Get(segments...).Exists()
}

// IsObject はトップレベルがオブジェクトかを返す。
func (d *Document) IsObject() bool {
	return d.Root().IsObject()
}

// Keys はトップレベルのキーをドキュメント内の出現順で返す。
// トップレベルがオブジェクトでない場合は空スライスを返す。
func (d *Document) Keys() []string {
	root := d.Root()
	if !root.IsObject() {
		return []string{}
	}
	keys := []string{}
	root.ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	return keys
}

// Apply はパッチ操作を順に適用し、ドキュメントを書き換える。
// 操作が空の場合はバイト表現を一切変更しない。
// 途中で失敗した場合もドキュメントは適用前の状態のまま残る。
func (d *Document) Apply(ops []Op) error {
	if len(ops) == 0 {
		return nil
	}

	encoded, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("failed to encode patch: %w", err)
	}

	patch, err := jsonpatch.DecodePatch(encoded)
	if err != nil {
		return fmt.Errorf("failed to decode patch: %w", err)
	}

	opts := jsonpatch.NewApplyOptions()
	opts.AllowMissingPathOnRemove = true
	opts.EscapeHTML = false

	patched, err := patch.ApplyWithOptions(d.raw, opts)
	if err != nil {
		return fmt.Errorf("failed to apply patch: %w", err)
	}

	d.raw = patched
	return nil
}

// Indent はドキュメントを2スペースインデントの正規形で返す。
// キーの順序と値の表現は変更しない。
func (d *Document) Indent() ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, d.raw, "", "  "); err != nil {
		return nil, fmt.Errorf("failed to indent document: %w", err)
	}
	return buf.Bytes(), nil
}

// Clone はドキュメントの独立したコピーを返す。
func (d *Document) Clone() *Document {
	raw := make([]byte, len(d.raw))
	copy(raw, d.raw)
	return &Document{raw: raw}
}

// Equal は2つのドキュメントが構造的に等しいかを返す。
// オブジェクトのキー順序と空白の違いは無視する。数値は表記のまま比較する。
func Equal(a, b *Document) bool {
	av, err := decodeValue(a.raw)
	if err != nil {
		return false
	}
	bv, err := decodeValue(b.raw)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}

func decodeValue(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Path はキーのセグメント列をエスケープ済みのgjsonパスに変換する。
func Path(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = gjson.Escape(s)
	}
	return strings.Join(escaped, ".")
}
