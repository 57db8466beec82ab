package httpapi

import (
	"net/http"
	"strings"
	"testing"

	"github.com/John-Robertt/clashsub/internal/metrics"
)

func TestMetrics_CountsRequestsAndErrors(t *testing.T) {
	m := metrics.New()
	h := NewRouter(Options{Metrics: m})

	if rr := serveRequest(h, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Fatalf("healthz status=%d body=%q", rr.Code, rr.Body.String())
	}
	// missing url => validate_request error
	if rr := serveRequest(h, http.MethodGet, "/sub", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("sub status=%d body=%q", rr.Code, rr.Body.String())
	}

	rr := serveRequest(h, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d body=%q", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{
		`clashsub_http_requests_total{pattern="GET /healthz",status="200"} 1`,
		`clashsub_http_requests_total{pattern="GET /sub",status="400"} 1`,
		`clashsub_app_errors_total{code="INVALID_ARGUMENT",stage="validate_request"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics body missing %q, got:\n%s", want, body)
		}
	}
}

func TestMetrics_RecordsRuns(t *testing.T) {
	up, _ := newUpstream(t, http.StatusOK, subscriptionBody())
	m := metrics.New()
	h := NewRouter(Options{Metrics: m})

	if rr := serveRequest(h, http.MethodGet, subPath(up.URL, ""), ""); rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := serveRequest(h, http.MethodGet, "/metrics", "").Body.String()
	for _, want := range []string{
		`clashsub_runs_total{outcome="success"} 1`,
		`clashsub_nodes{protocol="ss"} 1`,
		`clashsub_nodes{protocol="trojan"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics body missing %q, got:\n%s", want, body)
		}
	}
}
