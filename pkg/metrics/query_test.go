package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestQueryMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewQueryMetrics(reg)
	m.IncAttempt("network")
	m.IncAttempt("network")
	m.IncAttempt("ok")
	m.ObserveOutcome("success", 450*time.Millisecond)
	m.IncSuppressed()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "dashboard_query_attempts_total", "result", "network"); err != nil {
		t.Fatalf("fetch attempts: %v", err)
	} else if got != 2 {
		t.Fatalf("expected network attempts=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "dashboard_query_outcomes_total", "status", "success"); err != nil {
		t.Fatalf("fetch outcomes: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "dashboard_query_duration_seconds", "status", "success"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}

	mf := findMetricFamily(mfs, "dashboard_query_suppressed_emissions_total")
	if mf == nil || mf.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected one suppressed emission")
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	m := NewQueryMetrics(nil)
	m.IncAttempt("ok")
	m.ObserveOutcome("error", time.Second)
	m.IncSuppressed()

	var nilMetrics *QueryMetrics
	nilMetrics.IncAttempt("ok")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
