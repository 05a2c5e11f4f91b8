package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-procure/internal/procurement"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	_ = metrics.Jobs().Track("procurement:event").End(nil)

	body := scrape(t, metrics)
	if !strings.Contains(body, `odyssey_jobs_total{job="procurement:event",status="success"} 1`) {
		t.Fatalf("expected body to contain odyssey_jobs_total, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, "http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestPublishCountsTransitions(t *testing.T) {
	metrics := NewMetrics()
	ctx := context.Background()
	for _, evt := range []procurement.Event{
		{Entity: procurement.EntityRFQ, Action: procurement.ActionApproved},
		{Entity: procurement.EntityRFQ, Action: procurement.ActionApproved},
		{Entity: procurement.EntityCSEntry, Action: procurement.ActionRejected},
	} {
		if err := metrics.Publish(ctx, evt); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, `odyssey_procure_transitions_total{action="approved",entity="rfq"} 2`) {
		t.Fatalf("expected rfq approvals to be counted, got: %s", body)
	}
	if !strings.Contains(body, `odyssey_procure_transitions_total{action="rejected",entity="cs_entry"} 1`) {
		t.Fatalf("expected cs entry rejection to be counted, got: %s", body)
	}

	var nilMetrics *Metrics
	if err := nilMetrics.Publish(ctx, procurement.Event{}); err != nil {
		t.Fatalf("nil metrics publish: %v", err)
	}
}
