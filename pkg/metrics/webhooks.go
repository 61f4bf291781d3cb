package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records ingestion outcomes for Stripe webhook deliveries.
type WebhookMetrics struct {
	received  *prometheus.CounterVec
	processed *prometheus.CounterVec
	replayed  prometheus.Counter
	duration  *prometheus.HistogramVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_received",
		Help: "Webhook deliveries accepted after signature verification.",
	}, []string{"event_type"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_processed",
		Help: "Webhook events by terminal processing outcome.",
	}, []string{"event_type", "outcome"})
	replayed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_events_replayed",
		Help: "Webhook deliveries skipped because the event id was already seen.",
	})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_handler_duration_seconds",
		Help:    "Duration of webhook handlers in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})
	reg.MustRegister(received, processed, replayed, duration)
	return &WebhookMetrics{
		received:  received,
		processed: processed,
		replayed:  replayed,
		duration:  duration,
	}
}

// IncReceived increments the received counter for the event type.
func (w *WebhookMetrics) IncReceived(eventType string) {
	if w == nil || w.received == nil {
		return
	}
	w.received.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncProcessed records a terminal outcome (processed, failed, ignored).
func (w *WebhookMetrics) IncProcessed(eventType, outcome string) {
	if w == nil || w.processed == nil {
		return
	}
	w.processed.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// IncReplayed counts an idempotency-skipped delivery.
func (w *WebhookMetrics) IncReplayed() {
	if w == nil || w.replayed == nil {
		return
	}
	w.replayed.Inc()
}

// ObserveDuration records the handler duration for the event type.
func (w *WebhookMetrics) ObserveDuration(eventType string, duration time.Duration) {
	if w == nil || w.duration == nil {
		return
	}
	w.duration.WithLabelValues(normalizeLabel(eventType)).Observe(duration.Seconds())
}
