package report

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/hitoshi/verifix/internal/document"
	"github.com/hitoshi/verifix/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DecodeAndReport はデコードを試み、結果をテキストでwに書き出す。
// デコード失敗はOutcomeとして返し、エラーはwへの書き込み失敗の場合のみ返す。
func DecodeAndReport(w io.Writer, doc *document.Document) (Outcome, error) {
	o := Decode(doc)
	return o, WriteText(w, o)
}

// WriteText は結果を行指向のテキストで出力する。
func WriteText(w io.Writer, o Outcome) error {
	ew := &errWriter{w: w}

	switch o := o.(type) {
	case Decoded:
		ew.printf("Successfully parsed user after cleanup:\n")
		for _, l := range o.Summary.Lines() {
			ew.printf("  %s: %s\n", l.Label, l.Value)
		}
	case Failed:
		ew.printf("Still failed to parse user JSON after cleanup: %v\n", o.Err)
		ew.printf("\n=== Debugging Information ===\n")
		ew.printf("Error kind: %s\n", o.Err.Kind)
		path := o.Err.Path
		if path == "" {
			path = "(root)"
		}
		ew.printf("Error path: %s\n", path)
		if o.Err.Detail != "" {
			ew.printf("Error detail: %s\n", o.Err.Detail)
		}
		ew.printf("\nFields present in cleaned JSON:\n")
		for _, f := range o.Fields {
			ew.printf("  - %s\n", f)
		}
	default:
		return fmt.Errorf("unsupported outcome %T", o)
	}

	return ew.err
}

// Response はOutcomeのJSON表現。
type Response struct {
	Status  Status         `json:"status"`
	Summary *Summary       `json:"summary,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
	Fields  []string       `json:"fields,omitempty"`
}

// ErrorResponse はデコードエラーのJSON表現。
type ErrorResponse struct {
	Kind    model.DecodeErrorKind `json:"kind"`
	Path    string                `json:"path"`
	Detail  string                `json:"detail,omitempty"`
	Message string                `json:"message"`
}

// NewResponse はOutcomeをJSON表現に変換する。
func NewResponse(o Outcome) Response {
	switch o := o.(type) {
	case Decoded:
		s := o.Summary
		return Response{Status: StatusDecoded, Summary: &s}
	case Failed:
		return Response{
			Status: StatusFailed,
			Error: &ErrorResponse{
				Kind:    o.Err.Kind,
				Path:    o.Err.Path,
				Detail:  o.Err.Detail,
				Message: o.Err.Error(),
			},
			Fields: o.Fields,
		}
	}
	return Response{}
}

// WriteJSON は結果をインデント付きJSONで出力する。
func WriteJSON(w io.Writer, o Outcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewResponse(o))
}

// errWriter は最初の書き込みエラーを保持し、以降の書き込みを行わない。
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
