package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestWebhookMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewWebhookMetrics(reg)
	metrics.IncReceived("invoice.payment_succeeded")
	metrics.IncProcessed("invoice.payment_succeeded", "processed")
	metrics.IncReplayed()
	metrics.ObserveDuration("invoice.payment_succeeded", 50*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "webhook_events_received", "event_type", "invoice.payment_succeeded"); err != nil {
		t.Fatalf("fetch received: %v", err)
	} else if got != 1 {
		t.Fatalf("expected received=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "webhook_handler_duration_seconds", "event_type", "invoice.payment_succeeded"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestWebhookMetricsNilSafe(t *testing.T) {
	var metrics *WebhookMetrics
	metrics.IncReceived("x")
	metrics.IncProcessed("x", "failed")
	metrics.IncReplayed()
	metrics.ObserveDuration("x", time.Second)

	empty := NewWebhookMetrics(nil)
	empty.IncReceived("x")
	empty.IncReplayed()
}
