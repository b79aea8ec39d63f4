package document

import (
	"encoding/json"
	"strings"
)

// OpKind はJSON Patch操作の種類。
type OpKind string

const (
	// OpAdd はキーを追加（既存なら置換）する。
	OpAdd OpKind = "add"
	// OpRemove はキーを削除する。対象が存在しない場合は何もしない。
	OpRemove OpKind = "remove"
)

// Op は1件のJSON Patch操作を表す。
// ValueはOpAddの場合のみ使用し、nilはJSONのnullとして書き込まれる。
type Op struct {
	Kind    OpKind
	Pointer string
	Value   json.RawMessage
}

// MarshalJSON はRFC 6902形式でエンコードする。
func (o Op) MarshalJSON() ([]byte, error) {
	if o.Kind == OpRemove {
		return json.Marshal(struct {
			Op   OpKind `json:"op"`
			Path string `json:"path"`
		}{o.Kind, o.Pointer})
	}

	value := o.Value
	if len(value) == 0 {
		value = json.RawMessage("null")
	}
	return json.Marshal(struct {
		Op    OpKind          `json:"op"`
		Path  string          `json:"path"`
		Value json.RawMessage `json:"value"`
	}{o.Kind, o.Pointer, value})
}

// Remove はキー削除操作を生成する。
func Remove(pointer string) Op {
	return Op{Kind: OpRemove, Pointer: pointer}
}

// Add はキー追加操作を生成する。
func Add(pointer string, value json.RawMessage) Op {
	return Op{Kind: OpAdd, Pointer: pointer, Value: value}
}

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

// Pointer はセグメント列をRFC 6901のJSON Pointerに変換する。
func Pointer(segments ...string) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(pointerEscaper.Replace(s))
	}
	return b.String()
}
