package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/verifix/internal/document"
	"github.com/hitoshi/verifix/internal/inspect"
	"github.com/hitoshi/verifix/internal/metrics"
	"github.com/hitoshi/verifix/internal/middleware"
	"github.com/hitoshi/verifix/internal/model"
	"github.com/hitoshi/verifix/internal/normalize"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// newTestRouter は実際の正規化ルールで動くルーターを構築する。
func newTestRouter(t *testing.T, maxBody int64) (http.Handler, *prometheus.Registry) {
	t.Helper()

	n, err := normalize.New(normalize.DefaultRuleSet(), quietLogger())
	if err != nil {
		t.Fatalf("failed to create normalizer: %v", err)
	}
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(600))
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		Logger:            quietLogger(),
		Metrics:           collector,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		InspectService:    inspect.NewService(n, collector, quietLogger()),
		MaxBodySize:       maxBody,
		Gatherer:          reg,
	}), reg
}

func post(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

const samlUser = `{
  "id": "user_9",
  "object": "user",
  "create_organizations_limit": null,
  "email_addresses": [
    {"object": "email_address", "email_address": "sso@example.com",
     "verification": {"object": "verification_saml", "status": "verified", "strategy": "saml",
                      "external_verification_redirect_url": "https://idp.example.com"}}
  ],
  "enterprise_accounts": [
    {"object": "enterprise_account",
     "verification": {"object": "verification_oauth", "status": "verified", "strategy": "oauth_custom"}}
  ]
}`

func TestInspect_Decoded(t *testing.T) {
	router, _ := newTestRouter(t, 0)

	w := post(router, "/api/users/inspect", samlUser)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", w.Code, w.Body.String())
	}

	var body struct {
		Status  string `json:"status"`
		Summary struct {
			Email              string `json:"email"`
			EnterpriseAccounts int    `json:"enterprise_accounts_count"`
		} `json:"summary"`
		Removed []string           `json:"removed"`
		Repairs []normalize.Repair `json:"repairs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Status != "decoded" {
		t.Errorf("status = %q, want decoded", body.Status)
	}
	if body.Summary.Email != "sso@example.com" || body.Summary.EnterpriseAccounts != 1 {
		t.Errorf("summary = %+v", body.Summary)
	}
	if diff := cmp.Diff([]string{"create_organizations_limit"}, body.Removed); diff != "" {
		t.Errorf("removed mismatch (-want +got):\n%s", diff)
	}
	wantPointers := []string{
		"/email_addresses/0/verification/external_verification_redirect_url",
		"/enterprise_accounts/0/verification/external_verification_redirect_url",
	}
	var gotPointers []string
	for _, r := range body.Repairs {
		gotPointers = append(gotPointers, r.Pointer)
	}
	if diff := cmp.Diff(wantPointers, gotPointers); diff != "" {
		t.Errorf("repair pointers mismatch (-want +got):\n%s", diff)
	}
}

func TestInspect_DecodeFailureIs200(t *testing.T) {
	router, _ := newTestRouter(t, 0)

	w := post(router, "/api/users/inspect", `{"object":"user","email_addresses":[{"object":"email_address"}]}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Status string `json:"status"`
		Error  struct {
			Kind string `json:"kind"`
			Path string `json:"path"`
		} `json:"error"`
		Fields []string `json:"fields"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Status != "failed" {
		t.Errorf("status = %q, want failed", body.Status)
	}
	if body.Error.Kind != string(model.KindMissingField) || body.Error.Path != "email_addresses[0].email_address" {
		t.Errorf("error = %+v", body.Error)
	}
	if diff := cmp.Diff([]string{"object", "email_addresses"}, body.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestInspect_ErrorResponses(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"構文エラー", `{"id":`, http.StatusBadRequest, model.ErrCodeInvalidJSON},
		{"空ボディ", ``, http.StatusBadRequest, model.ErrCodeEmptyBody},
		{"上限超過", `{"id":"` + strings.Repeat("x", 128) + `"}`, http.StatusRequestEntityTooLarge, model.ErrCodePayloadTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(t, 64)

			w := post(router, "/api/users/inspect", tt.body)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d; body=%s", w.Code, tt.wantCode, w.Body.String())
			}
			var body middleware.ErrorResponseBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode error body: %v", err)
			}
			if body.Code != tt.wantErr {
				t.Errorf("code = %q, want %q", body.Code, tt.wantErr)
			}
		})
	}
}

func TestNormalize_ReturnsDocumentInOriginalOrder(t *testing.T) {
	router, _ := newTestRouter(t, 0)

	w := post(router, "/api/users/normalize", `{"z":1,"saml_accounts":[{"verification":{"object":"verification_saml"}}],"a":2}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Document jsoniter.RawMessage `json:"document"`
		Repairs  []normalize.Repair  `json:"repairs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	doc, err := document.Parse(body.Document)
	if err != nil {
		t.Fatalf("document is not valid JSON: %v", err)
	}
	if diff := cmp.Diff([]string{"z", "saml_accounts", "a"}, doc.Keys()); diff != "" {
		t.Errorf("key order mismatch (-want +got):\n%s", diff)
	}
	if !doc.Has("saml_accounts", "0", "verification", "external_verification_redirect_url") {
		t.Errorf("redirect url should be inserted: %s", doc)
	}
	if len(body.Repairs) != 1 {
		t.Errorf("repairs = %+v, want 1", body.Repairs)
	}
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t, 0)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"status":"ok"}` {
		t.Errorf("body = %s", got)
	}
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("expected X-Request-ID on every response")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on every response")
	}
}

func TestMetricsEndpoint_ReflectsTraffic(t *testing.T) {
	router, _ := newTestRouter(t, 0)

	post(router, "/api/users/inspect", samlUser)
	post(router, "/api/users/inspect", `{"id":`)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	out := w.Body.String()
	for _, want := range []string{
		`verifix_inspect_total{outcome="decoded"} 1`,
		`verifix_syntax_fail_total 1`,
		`verifix_repairs_total{action="insert_default",container="enterprise_accounts"} 1`,
		`verifix_http_status_total{status_code="400"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	router, _ := newTestRouter(t, 0)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users/inspect", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestRouter_RateLimited(t *testing.T) {
	n, _ := normalize.New(normalize.DefaultRuleSet(), quietLogger())
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{Rate: 0.001, Burst: 1})
	t.Cleanup(rl.Stop)

	router := NewRouter(&RouterDeps{
		Logger:         quietLogger(),
		RateLimiter:    rl,
		InspectService: inspect.NewService(n, nil, quietLogger()),
	})

	if w := post(router, "/api/users/inspect", `{"object":"user"}`); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", w.Code)
	}
	if w := post(router, "/api/users/inspect", `{"object":"user"}`); w.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", w.Code)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("/health must not be rate limited, got %d", w.Code)
	}
}

// stubService は内部エラーを返すテスト用サービス。
type stubService struct{ err error }

func (s *stubService) Inspect(context.Context, []byte) (*inspect.Result, error) {
	return nil, s.err
}

func (s *stubService) Normalize(context.Context, []byte) (*document.Document, normalize.Result, error) {
	return nil, normalize.Result{}, s.err
}

func TestUserHandler_InternalError(t *testing.T) {
	h := NewUserHandler(&stubService{err: errors.New("unexpected")}, 0)

	for name, fn := range map[string]http.HandlerFunc{"inspect": h.Inspect, "normalize": h.Normalize} {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			fn(w, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{}`))))

			if w.Code != http.StatusInternalServerError {
				t.Errorf("status = %d, want 500", w.Code)
			}
		})
	}
}
