// Package webhook implements the Alert Dispatcher: severity-gated,
// rate-limited delivery of human-visible alerts across pluggable
// transports, backed by a fixed worker pool so SMTP/HTTP calls never run
// on a caller's request goroutine.
//
// Adapted from the donor codebase's webhook dispatcher (queue chan
// *deliveryJob, fixed worker goroutines draining it) — generalized from
// "deliver one outbound webhook event" to "deliver one severity-gated
// alert over whichever transport is configured." Unlike the donor,
// delivery failures are counted, not retried inline.
package webhook

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/rhamenator/antiscrape/internal/jsonlog"
	"github.com/rhamenator/antiscrape/internal/metrics"
)

type Dispatcher struct {
	transport   Transport
	minSeverity int
	limiter     *rate.Limiter
	queue       chan Alert
	registry    *metrics.Registry
	alertLog    *jsonlog.Writer
}

// NewDispatcher starts workerCount goroutines draining a bounded queue of
// pending alerts. ratePerSec additionally throttles outbound transport
// calls regardless of severity, so a reason burst can't itself flood the
// transport.
func NewDispatcher(transport Transport, minSeverity int, ratePerSec float64, workerCount, queueSize int, registry *metrics.Registry, alertLog *jsonlog.Writer) *Dispatcher {
	if workerCount <= 0 {
		workerCount = 4
	}
	if queueSize <= 0 {
		queueSize = 1000
	}
	d := &Dispatcher{
		transport:   transport,
		minSeverity: minSeverity,
		limiter:     rate.NewLimiter(rate.Limit(ratePerSec), int(ratePerSec)+1),
		queue:       make(chan Alert, queueSize),
		registry:    registry,
		alertLog:    alertLog,
	}
	for i := 0; i < workerCount; i++ {
		go d.worker(i)
	}
	return d
}

// Dispatch gates alert on its severity and, if it clears the configured
// minimum, enqueues it for asynchronous delivery. Never blocks the
// caller beyond a full queue (which drops the alert and counts it).
func (d *Dispatcher) Dispatch(reason, message, ip string) {
	severity := Severity(reason)
	if severity == 0 || severity < d.minSeverity {
		d.registry.Increment("alert_dispatch_skipped_severity", 1)
		return
	}
	alert := Alert{Reason: reason, Message: message, Severity: severity, IP: ip, Timestamp: time.Now()}
	select {
	case d.queue <- alert:
	default:
		d.registry.Increment("alert_dispatch_queue_full", 1)
		slog.Warn("alert dispatcher: queue full, dropping alert", "reason", reason)
	}
}

func (d *Dispatcher) worker(id int) {
	for alert := range d.queue {
		d.deliver(alert)
	}
}

func (d *Dispatcher) deliver(alert Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := d.limiter.Wait(ctx); err != nil {
		d.registry.Increment("alert_dispatch_rate_limited", 1)
		return
	}

	start := time.Now()
	err := d.transport.Send(ctx, alert)
	metrics.WebhookDeliverySeconds.WithLabelValues(d.transport.Name()).Observe(time.Since(start).Seconds())

	if err != nil {
		d.registry.Increment("alert_dispatch_errors", 1)
		slog.Warn("alert dispatcher: delivery failed", "transport", d.transport.Name(), "reason", alert.Reason, "error", err)
		return
	}
	d.registry.Increment("alert_dispatch_delivered", 1)
	if d.alertLog != nil {
		d.alertLog.Append(map[string]any{
			"reason":   alert.Reason,
			"message":  alert.Message,
			"severity": alert.Severity,
			"ip":       alert.IP,
			"transport": d.transport.Name(),
		})
	}
}

// Shutdown drains the queue and stops accepting new alerts. Safe to call
// once at process exit.
func (d *Dispatcher) Shutdown() {
	close(d.queue)
}
