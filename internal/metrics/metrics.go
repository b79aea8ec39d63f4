// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス記録のインターフェース。
// 検査サービスとHTTPミドルウェアから利用する。
type Recorder interface {
	RecordOutcome(outcome string)
	RecordRepair(container, action string)
	RecordAcquisitionFailure(source string)
	RecordSyntaxFailure()
	RecordInspectLatency(d time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	outcomes       *prometheus.CounterVec
	repairs        *prometheus.CounterVec
	acquireFail    *prometheus.CounterVec
	syntaxFail     prometheus.Counter
	inspectLatency prometheus.Histogram
	httpStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verifix_inspect_total",
			Help: "検査結果（decoded/failed）別の件数",
		}, []string{"outcome"}),
		repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verifix_repairs_total",
			Help: "コンテナと操作別の修復件数",
		}, []string{"container", "action"}),
		acquireFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verifix_acquisition_fail_total",
			Help: "入力元別の取得失敗数",
		}, []string{"source"}),
		syntaxFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verifix_syntax_fail_total",
			Help: "JSON構文エラーの合計数",
		}),
		inspectLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "verifix_inspect_latency_seconds",
			Help:    "正規化とデコードにかかった時間（秒）",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verifix_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.outcomes,
		c.repairs,
		c.acquireFail,
		c.syntaxFail,
		c.inspectLatency,
		c.httpStatus,
	)

	return c
}

// RecordOutcome は検査結果を記録する。
func (c *Collector) RecordOutcome(outcome string) {
	c.outcomes.WithLabelValues(outcome).Inc()
}

// RecordRepair は1件の修復を記録する。
func (c *Collector) RecordRepair(container, action string) {
	c.repairs.WithLabelValues(container, action).Inc()
}

// RecordAcquisitionFailure は入力取得の失敗を記録する。
func (c *Collector) RecordAcquisitionFailure(source string) {
	c.acquireFail.WithLabelValues(source).Inc()
}

// RecordSyntaxFailure はJSON構文エラーを記録する。
func (c *Collector) RecordSyntaxFailure() {
	c.syntaxFail.Inc()
}

// RecordInspectLatency は検査のレイテンシを記録する。
func (c *Collector) RecordInspectLatency(d time.Duration) {
	c.inspectLatency.Observe(d.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Discard は何も記録しないRecorder。
type Discard struct{}

func (Discard) RecordOutcome(string) {}
func (Discard) RecordRepair(string, string) {}
func (Discard) RecordAcquisitionFailure(string) {}
func (Discard) RecordSyntaxFailure() {}
func (Discard) RecordInspectLatency(time.Duration) {}
func (Discard) RecordHTTPStatus(int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントのみを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
