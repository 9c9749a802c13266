package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Handler returns the Prometheus scrape handler shared by every binary's
// /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}

// promEvents mirrors every Registry.Increment call, labeled by key, so the
// same counters are visible to both the spec-mandated JSON snapshot and a
// Prometheus scraper.
var promEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "antiscrape_events_total",
	Help: "Mirrors every Metrics Registry counter increment, labeled by key.",
}, []string{"key"})

// TarpitStreamSeconds observes how long a tarpit response took to stream
// to completion (or cancellation).
var TarpitStreamSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "antiscrape_tarpit_stream_seconds",
	Help:    "Duration of a tarpit response stream.",
	Buckets: []float64{1, 2, 5, 10, 20, 40, 80},
})

// EscalationScoreDurationSeconds observes how long the Escalation
// Engine's decision ladder took end to end, including any classifier
// calls.
var EscalationScoreDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "antiscrape_escalation_score_duration_seconds",
	Help:    "Duration of the escalation decision ladder.",
	Buckets: prometheus.DefBuckets,
})

// WebhookDeliverySeconds observes alert-transport delivery latency.
var WebhookDeliverySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "antiscrape_webhook_delivery_seconds",
	Help:    "Duration of an alert transport delivery attempt.",
	Buckets: prometheus.DefBuckets,
}, []string{"transport"})
