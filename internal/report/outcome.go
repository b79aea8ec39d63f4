// Package report は正規化済みドキュメントのstrictデコードと結果の出力を行う。
// デコード失敗は致命的エラーではなく、診断情報付きのFailedとして報告する。
package report

import (
	"errors"

	"github.com/hitoshi/verifix/internal/document"
	"github.com/hitoshi/verifix/internal/model"
)

// Status はデコード結果の種別。
type Status string

const (
	StatusDecoded Status = "decoded"
	StatusFailed  Status = "failed"
)

// Outcome はDecodedまたはFailedのいずれかを表す。
// 呼び出し側は型switchで分岐する。
type Outcome interface {
	Status() Status
	outcome()
}

// Decoded はstrictデコードに成功した結果。
type Decoded struct {
	User    *model.User
	Summary Summary
}

// Status はOutcomeを実装する。
func (Decoded) Status() Status { return StatusDecoded }
func (Decoded) outcome()       {}

// Failed はstrictデコードに失敗した結果。
// Fieldsは正規化後ドキュメントのトップレベルキー（出現順）。
type Failed struct {
	Err    *model.DecodeError
	Fields []string
}

// Status はOutcomeを実装する。
func (Failed) Status() Status { return StatusFailed }
func (Failed) outcome()       {}

// Decode はドキュメントを正規形にシリアライズし、ユーザーモデルへのstrictデコードを試みる。
// 失敗した場合はシリアライズ結果を汎用ドキュメントとして再解析し、存在するキーを収集する。
func Decode(doc *document.Document) Outcome {
	text, err := doc.Indent()
	if err != nil {
		text = doc.Bytes()
	}

	user, err := model.DecodeUser(text)
	if err == nil {
		return Decoded{User: user, Summary: Summarize(user)}
	}

	var de *model.DecodeError
	if !errors.As(err, &de) {
		de = &model.DecodeError{Kind: model.KindInvalidValue, Detail: err.Error()}
	}

	fields := []string{}
	if reparsed, perr := document.Parse(text); perr == nil {
		fields = reparsed.Keys()
	}
	return Failed{Err: de, Fields: fields}
}
