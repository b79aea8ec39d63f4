package model

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/tidwall/gjson"
)

// shape はオブジェクトが持ってよいキーと必須キーの組。
type shape struct {
	known    map[string]struct{}
	required []string
}

// shapeOf は構造体のjsonタグから許可キーを導出する。
func shapeOf(v any, required ...string) shape {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	known := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		known[name] = struct{}{}
	}
	for _, r := range required {
		if _, ok := known[r]; !ok {
			panic(fmt.Sprintf("model: required key %q is not a field of %s", r, t))
		}
	}
	return shape{known: known, required: required}
}

// shapeFromKeys はキーの一覧から許可キーを作る。
func shapeFromKeys(keys []string, required ...string) shape {
	known := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		known[k] = struct{}{}
	}
	return shape{known: known, required: required}
}

// check は未知のキーと必須キーの欠落を検出する。
// nullは「値なし」として許容し、デコード側の扱いに任せる。
func (s shape) check(data []byte) error {
	res := gjson.ParseBytes(data)
	if res.Type == gjson.Null {
		return nil
	}
	if !res.IsObject() {
		return &DecodeError{Kind: KindTypeMismatch, Detail: "expected object, got " + describe(res)}
	}

	var err error
	res.ForEach(func(key, _ gjson.Result) bool {
		if _, ok := s.known[key.String()]; !ok {
			err = &DecodeError{Kind: KindUnknownField, Path: key.String(), Detail: "field is not part of the model"}
			return false
		}
		return true
	})
	if err != nil {
		return err
	}

	for _, r := range s.required {
		if !res.Get(gjson.Escape(r)).Exists() {
			return &DecodeError{Kind: KindMissingField, Path: r, Detail: "required field is absent"}
		}
	}
	return nil
}

// decodeList は配列をレコードごとにデコードし、失敗位置にインデックスを付与する。
// 欠落またはnullの場合はnilを返す。
func decodeList[T any](raw json.RawMessage, field string) ([]T, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	res := gjson.ParseBytes(raw)
	if res.Type == gjson.Null {
		return nil, nil
	}
	if !res.IsArray() {
		return nil, &DecodeError{Kind: KindTypeMismatch, Path: field, Detail: "expected array, got " + describe(res)}
	}

	items := res.Array()
	out := make([]T, 0, len(items))
	for i, item := range items {
		if !item.IsObject() {
			return nil, &DecodeError{
				Kind:   KindTypeMismatch,
				Path:   fmt.Sprintf("%s[%d]", field, i),
				Detail: "expected object, got " + describe(item),
			}
		}
		var v T
		if err := json.Unmarshal([]byte(item.Raw), &v); err != nil {
			return nil, withPath(asDecodeError(err), fmt.Sprintf("%s[%d]", field, i))
		}
		out = append(out, v)
	}
	return out, nil
}

// describe はエラーメッセージ用にJSON値の型名を返す。
func describe(r gjson.Result) string {
	switch {
	case r.IsObject():
		return "object"
	case r.IsArray():
		return "array"
	}
	switch r.Type {
	case gjson.String:
		return "string"
	case gjson.Number:
		return "number"
	case gjson.True, gjson.False:
		return "bool"
	case gjson.Null:
		return "null"
	}
	return "unknown"
}
