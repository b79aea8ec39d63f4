package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は指定名のメトリクスファミリーから、ラベルが一致する系列を返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	if len(got) != len(want) {
		return false
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestRecordOutcome_CountsPerOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordOutcome("decoded")
	c.RecordOutcome("decoded")
	c.RecordOutcome("failed")

	if v := findMetric(t, reg, "verifix_inspect_total", map[string]string{"outcome": "decoded"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("decoded = %v, want 2", v)
	}
	if v := findMetric(t, reg, "verifix_inspect_total", map[string]string{"outcome": "failed"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("failed = %v, want 1", v)
	}
}

func TestRecordRepair_Labels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRepair("email_addresses", "remove")
	c.RecordRepair("saml_accounts", "insert_default")
	c.RecordRepair("saml_accounts", "insert_default")

	m := findMetric(t, reg, "verifix_repairs_total", map[string]string{"container": "saml_accounts", "action": "insert_default"})
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("saml_accounts/insert_default = %v, want 2", v)
	}
}

func TestRecordAcquisitionFailure_BySource(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAcquisitionFailure("url")

	if v := findMetric(t, reg, "verifix_acquisition_fail_total", map[string]string{"source": "url"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("url = %v, want 1", v)
	}
}

func TestRecordSyntaxFailure_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSyntaxFailure()
	c.RecordSyntaxFailure()

	if v := findMetric(t, reg, "verifix_syntax_fail_total", nil).GetCounter().GetValue(); v != 2 {
		t.Errorf("syntax_fail_total = %v, want 2", v)
	}
}

func TestRecordInspectLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordInspectLatency(3 * time.Millisecond)
	c.RecordInspectLatency(5 * time.Millisecond)

	h := findMetric(t, reg, "verifix_inspect_latency_seconds", nil).GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample count = %d, want 2", h.GetSampleCount())
	}
	if sum := h.GetSampleSum(); sum < 0.0079 || sum > 0.0081 {
		t.Errorf("sample sum = %v, want 0.008", sum)
	}
}

func TestRecordHTTPStatus_ByStatusCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(413)

	if v := findMetric(t, reg, "verifix_http_status_total", map[string]string{"status_code": "413"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("413 = %v, want 1", v)
	}
}

func TestCollector_ImplementsRecorder(t *testing.T) {
	var _ Recorder = NewCollector(prometheus.NewRegistry())
	var _ Recorder = Discard{}
}

func TestSetupMetricsRoute_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordOutcome("decoded")

	w := httptest.NewRecorder()
	SetupMetricsRoute(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body, _ := io.ReadAll(w.Result().Body)
	if !strings.Contains(string(body), `verifix_inspect_total{outcome="decoded"} 1`) {
		t.Errorf("response should contain verifix_inspect_total, got:\n%s", body)
	}
}

func TestSetupMetricsRoute_OtherPath404(t *testing.T) {
	w := httptest.NewRecorder()
	SetupMetricsRoute(prometheus.NewRegistry()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/other", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
