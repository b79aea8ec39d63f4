// Package inspect はユーザーレコードの取得・正規化・デコード・報告を1つの流れとしてまとめる。
package inspect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/hitoshi/verifix/internal/document"
	"github.com/hitoshi/verifix/internal/metrics"
	"github.com/hitoshi/verifix/internal/normalize"
	"github.com/hitoshi/verifix/internal/report"
	"github.com/hitoshi/verifix/internal/source"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Header はテキスト出力の先頭行。
const Header = "=== Attempting to parse user JSON with the User model ==="

// Format は報告の出力形式。
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat は文字列を出力形式に変換する。
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatJSON:
		return Format(s), nil
	}
	return "", fmt.Errorf("unsupported report format %q (expected text or json)", s)
}

// Service は検査処理を提供する。
// Normalizerは不変のため、1つのServiceを複数のリクエストで共有できる。
type Service struct {
	normalizer *normalize.Normalizer
	metrics    metrics.Recorder
	logger     *slog.Logger
}

// NewService は新しいServiceを生成する。
func NewService(n *normalize.Normalizer, m metrics.Recorder, logger *slog.Logger) *Service {
	if m == nil {
		m = metrics.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{normalizer: n, metrics: m, logger: logger}
}

// Result は1件の検査結果。
type Result struct {
	Document *document.Document
	Changes  normalize.Result
	Outcome  report.Outcome
}

// Response は検査結果のJSON表現。
type Response struct {
	report.Response
	Removed []string           `json:"removed"`
	Repairs []normalize.Repair `json:"repairs"`
}

// Response は結果をJSON表現に変換する。
func (r *Result) Response() Response {
	resp := Response{
		Response: report.NewResponse(r.Outcome),
		Removed:  r.Changes.Removed,
		Repairs:  r.Changes.Repairs,
	}
	if resp.Removed == nil {
		resp.Removed = []string{}
	}
	if resp.Repairs == nil {
		resp.Repairs = []normalize.Repair{}
	}
	return resp
}

// Normalize はJSONを解析して正規化のみを行う。
// 構文エラーの場合は*document.SyntaxErrorを返す。
func (s *Service) Normalize(ctx context.Context, data []byte) (*document.Document, normalize.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, normalize.Result{}, err
	}

	doc, err := document.Parse(data)
	if err != nil {
		s.metrics.RecordSyntaxFailure()
		return nil, normalize.Result{}, err
	}

	changes := s.normalizer.Normalize(doc)
	for _, r := range changes.Repairs {
		s.metrics.RecordRepair(r.Container, string(r.Action))
	}
	for range changes.Removed {
		s.metrics.RecordRepair("root", string(normalize.ActionRemove))
	}
	return doc, changes, nil
}

// Inspect は解析・正規化・strictデコードを行う。
// デコード失敗はエラーではなくResult.Outcomeで表す。エラーは構文エラーの場合のみ返す。
func (s *Service) Inspect(ctx context.Context, data []byte) (*Result, error) {
	start := time.Now()

	doc, changes, err := s.Normalize(ctx, data)
	if err != nil {
		return nil, err
	}

	outcome := report.Decode(doc)
	elapsed := time.Since(start)

	s.metrics.RecordOutcome(string(outcome.Status()))
	s.metrics.RecordInspectLatency(elapsed)

	attrs := []any{
		slog.String("outcome", string(outcome.Status())),
		slog.Int("removed", len(changes.Removed)),
		slog.Int("repairs", len(changes.Repairs)),
		slog.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if f, ok := outcome.(report.Failed); ok {
		attrs = append(attrs,
			slog.String("error_kind", string(f.Err.Kind)),
			slog.String("error_path", f.Err.Path),
		)
	}
	s.logger.Info("ユーザーレコードを検査しました", attrs...)

	return &Result{Document: doc, Changes: changes, Outcome: outcome}, nil
}

// Run は入力元から読み込み、検査結果をwに出力する。
// 取得失敗と構文エラーは致命的エラーとして返す。デコード失敗は出力した上でnilを返す。
func (s *Service) Run(ctx context.Context, src source.Source, w io.Writer, format Format) (report.Outcome, error) {
	data, err := src.Read(ctx)
	if err != nil {
		s.metrics.RecordAcquisitionFailure(string(src.Kind()))
		s.logger.Error("入力の取得に失敗しました",
			slog.String("source", src.Name()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	res, err := s.Inspect(ctx, data)
	if err != nil {
		var syntaxErr *document.SyntaxError
		if errors.As(err, &syntaxErr) {
			s.logger.Error("JSONの構文エラー",
				slog.String("source", src.Name()),
				slog.Int64("offset", syntaxErr.Offset),
			)
			return nil, fmt.Errorf("%s: %w", src.Name(), err)
		}
		return nil, err
	}

	if format == FormatJSON {
		return res.Outcome, writeJSON(w, res.Response())
	}
	return res.Outcome, writeText(w, res)
}

func writeText(w io.Writer, res *Result) error {
	if _, err := fmt.Fprintf(w, "%s\n", Header); err != nil {
		return err
	}
	for _, field := range res.Changes.Removed {
		if _, err := fmt.Fprintf(w, "Removed top-level field: %s\n", field); err != nil {
			return err
		}
	}
	for _, r := range res.Changes.Repairs {
		if _, err := fmt.Fprintf(w, "Repaired %s[%d].verification (%s): %s %s\n",
			r.Container, r.Index, r.Tag, r.Action, r.Field); err != nil {
			return err
		}
	}
	return report.WriteText(w, res.Outcome)
}

func writeJSON(w io.Writer, resp Response) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
