package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

func newRouter(mw func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(mw)
	r.Get("/api/v1/packages/{package_id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// requestCount возвращает значение ps_http_requests_total для лейблов.
func requestCount(t *testing.T, method, path, status string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("ошибка Gather: %v", err)
	}
	want := map[string]string{"method": method, "path": path, "status": status}
	for _, mf := range families {
		if mf.GetName() != "ps_http_requests_total" {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

// TestMetricsMiddleware_RoutePattern проверяет, что id пакета не попадает в лейблы.
func TestMetricsMiddleware_RoutePattern(t *testing.T) {
	r := newRouter(MetricsMiddleware())
	const pattern = "/api/v1/packages/{package_id}"

	before := requestCount(t, http.MethodGet, pattern, "404")

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/packages/"+id, nil))
	}

	after := requestCount(t, http.MethodGet, pattern, "404")
	if after-before != 3 {
		t.Errorf("ожидалось +3 запроса по шаблону, получено %v", after-before)
	}
}

func TestMetricsMiddleware_Unmatched(t *testing.T) {
	r := newRouter(MetricsMiddleware())

	before := requestCount(t, http.MethodGet, unmatchedPath, "404")
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/123", nil))
	after := requestCount(t, http.MethodGet, unmatchedPath, "404")

	if after-before != 1 {
		t.Errorf("ожидалось +1 для unmatched, получено %v", after-before)
	}
}

func TestRequestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	r := newRouter(RequestLogger(logger))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/packages/x", nil))
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "status=404") {
		t.Errorf("ожидалась запись WARN со статусом 404: %s", out)
	}

	buf.Reset()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if buf.Len() != 0 {
		t.Errorf("probe не должен логироваться на уровне INFO: %s", buf.String())
	}
}
