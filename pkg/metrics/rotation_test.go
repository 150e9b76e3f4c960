package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRotationMetricsCountByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRotationMetrics(reg)

	m.IncSwitch("limit_reached")
	m.IncSwitch("limit_reached")
	m.IncSwitch("manual")
	m.IncUsageDelta("refund")
	m.IncAllocationFailure()
	m.IncSyncFailure()
	m.IncReset("monthly_reset")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "payswitch_rotation_switches_total", "reason", "limit_reached"); err != nil || got != 2 {
		t.Fatalf("expected 2 limit_reached switches, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "payswitch_ledger_usage_deltas_total", "kind", "refund"); err != nil || got != 1 {
		t.Fatalf("expected 1 refund delta, got %f err=%v", got, err)
	}
	if mf := findMetricFamily(mfs, "payswitch_rotation_allocation_failures_total"); mf == nil || mf.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected allocation failure counter")
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	var rm *RotationMetrics
	rm.IncSwitch("manual")
	NewRotationMetrics(nil).IncSyncFailure()
	NewHTTPMetrics(nil).Observe("/x", "GET", 200, time.Millisecond)
	NewCronJobMetrics(nil).IncFailure("job")
}

func TestHTTPMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Observe("/api/admin/v1/accounts", "GET", 200, 20*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "payswitch_http_requests_total", "route", "/api/admin/v1/accounts"); err != nil || got != 1 {
		t.Fatalf("expected one request, got %f err=%v", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "payswitch_http_request_duration_seconds", "method", "GET"); err != nil || got <= 0 {
		t.Fatalf("expected latency sample, got %f err=%v", got, err)
	}
}
