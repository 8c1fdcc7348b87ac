package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNormalizedPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "/api/v1/quizzes/15/submit", want: "/api/v1/quizzes/{id}/submit"},
		{in: "/api/v1/results/7", want: "/api/v1/results/{id}"},
		{in: "/api/v1/quizzes/15/results", want: "/api/v1/quizzes/{id}/results"},
		{in: "/healthz", want: "/healthz"},
		{in: "", want: "/"},
	}

	for _, tc := range tests {
		if got := normalizedPath(tc.in); got != tc.want {
			t.Fatalf("normalizedPath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExtractResultID(t *testing.T) {
	if got := extractResultID("/api/v1/results/42/grade"); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if got := extractResultID("/api/v1/quizzes/42/submit"); got != 0 {
		t.Fatalf("expected 0 for non-result path, got %d", got)
	}
}

func TestMiddlewareCountsRequests(t *testing.T) {
	c := NewCollector(nil)
	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/results/7", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	h.ServeHTTP(httptest.NewRecorder(), req)

	c.mu.RLock()
	s := c.requestStats[key{Method: http.MethodGet, Path: "/api/v1/results/{id}", Status: http.StatusTeapot}]
	c.mu.RUnlock()

	if s.Count != 2 {
		t.Fatalf("expected 2 recorded requests, got %d", s.Count)
	}
}

func TestMetricsHandlerOutput(t *testing.T) {
	c := NewCollector(nil)
	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	w := httptest.NewRecorder()
	c.MetricsHandler(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := w.Body.String()
	if !strings.Contains(body, "aulalms_uptime_seconds") {
		t.Fatalf("metrics output missing uptime gauge: %s", body)
	}
	if !strings.Contains(body, `aulalms_http_requests_total{method="GET",path="/healthz",status="200"} 1`) {
		t.Fatalf("metrics output missing request counter: %s", body)
	}
}
