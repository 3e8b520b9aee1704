package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

func TestInitMetrics(t *testing.T) {
	handler, shutdown, err := InitMetrics("simplane-test")
	if err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	if handler == nil {
		t.Fatal("expected handler to be non-nil")
	}
	if shutdown == nil {
		t.Fatal("expected shutdown function to be non-nil")
	}

	// Smoke test: verify handler returns 200 and non-empty body
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	if rr.Body.Len() == 0 {
		t.Error("handler returned empty body")
	}
}

func TestInitMetrics_CustomMetricAppearsInOutput(t *testing.T) {
	ctx := context.Background()

	handler, shutdown, err := InitMetrics("simplane-test")
	if err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	// Create a custom counter using the global MeterProvider
	meter := otel.Meter("simplane-scheduler")
	counter, err := meter.Int64Counter("simplane_jobs_submitted")
	if err != nil {
		t.Fatalf("failed to create counter: %v", err)
	}

	// Increment the counter
	counter.Add(ctx, 42)

	// Scrape metrics and verify our custom metric appears
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}

	body := rr.Body.String()

	// Verify the custom metric appears in Prometheus format
	if !strings.Contains(body, "simplane_jobs_submitted") {
		t.Errorf("expected custom metric 'simplane_jobs_submitted' in output, got:\n%s", body)
	}

	// Verify the value is present (Prometheus format: metric_name{labels} value)
	if !strings.Contains(body, "42") {
		t.Errorf("expected value '42' in output, got:\n%s", body)
	}
}

func TestInitMetrics_ServiceNameInTargetInfo(t *testing.T) {
	tests := []struct {
		name        string
		serviceName string
		want        string
	}{
		{"explicit service", "simplane-resource-test", `service_name="simplane-resource-test"`},
		{"default resource", "", `service_name="unknown_service:`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, shutdown, err := InitMetrics(tt.serviceName)
			if err != nil {
				t.Fatalf("InitMetrics failed: %v", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
				defer cancel()
				_ = shutdown(shutdownCtx)
			}()

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			if rr.Code != http.StatusOK {
				t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
			}

			var info string
			for _, line := range strings.Split(rr.Body.String(), "\n") {
				if strings.HasPrefix(line, "target_info{") && strings.Contains(line, tt.want) {
					info = line
				}
			}
			if info == "" {
				t.Errorf("expected target_info with %s, got:\n%s", tt.want, rr.Body.String())
			}
		})
	}
}
