package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Operation("create_post", OutcomeOK)
	m.Operation("create_post", OutcomeOK)
	m.Operation("delete_board", OutcomeDenied)
	m.Login(false)
	m.MediaDelete(errors.New("gone"))

	if got := testutil.ToFloat64(m.operations.WithLabelValues("create_post", OutcomeOK)); got != 2 {
		t.Errorf("Expected 2 create_post ok, got %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("delete_board", OutcomeDenied)); got != 1 {
		t.Errorf("Expected 1 delete_board denied, got %v", got)
	}
	if got := testutil.ToFloat64(m.logins.WithLabelValues("false")); got != 1 {
		t.Errorf("Expected 1 failed login, got %v", got)
	}
	if got := testutil.ToFloat64(m.mediaDeletes.WithLabelValues("failed")); got != 1 {
		t.Errorf("Expected 1 failed media delete, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Operation("x", OutcomeOK)
	m.Login(true)
	m.MediaDelete(nil)
	h := m.Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestInstrumentUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/post/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/post/42", nil))

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/post/{id}", "418")); got != 1 {
		t.Errorf("Expected request counted under route pattern, got %v", got)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "forum_http_requests_total") {
		t.Error("Expected /metrics to expose forum_http_requests_total")
	}
}
