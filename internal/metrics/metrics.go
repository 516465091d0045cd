// Package metrics exposes Prometheus collectors for the event bus and the
// digest runner. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "notify"

// Metrics groups every collector the service records.
type Metrics struct {
	eventsPublished    *prometheus.CounterVec
	handlerFailures    *prometheus.CounterVec
	digestPasses       *prometheus.CounterVec
	digestPassDuration prometheus.Histogram
	digestEmails       prometheus.Counter
	digestMarked       prometheus.Counter
	digestFailures     prometheus.Counter
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		eventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events published on the in-process bus.",
		}, []string{"kind"}),
		handlerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_handler_failures_total",
			Help:      "Event handler invocations that returned an error.",
		}, []string{"kind", "handler"}),
		digestPasses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "digest_passes_total",
			Help:      "Digest passes by outcome.",
		}, []string{"result"}),
		digestPassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "digest_pass_duration_seconds",
			Help:      "Wall time of one digest pass.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		digestEmails: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "digest_emails_sent_total",
			Help:      "Digest emails handed to the email provider.",
		}),
		digestMarked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "digest_notifications_sent_total",
			Help:      "Notification rows marked sent by the digest runner.",
		}),
		digestFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "digest_contractor_failures_total",
			Help:      "Contractors whose digest failed within a pass.",
		}),
	}
}

func (m *Metrics) EventPublished(kind string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(kind).Inc()
}

func (m *Metrics) HandlerFailed(kind, handler string) {
	if m == nil {
		return
	}
	m.handlerFailures.WithLabelValues(kind, handler).Inc()
}

// DigestPass records one finished pass.
func (m *Metrics) DigestPass(took time.Duration, emails, marked, failed int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.digestPasses.WithLabelValues(result).Inc()
	m.digestPassDuration.Observe(took.Seconds())
	m.digestEmails.Add(float64(emails))
	m.digestMarked.Add(float64(marked))
	m.digestFailures.Add(float64(failed))
}

// DigestSkipped records a pass the scheduler did not run (lock held elsewhere).
func (m *Metrics) DigestSkipped() {
	if m == nil {
		return
	}
	m.digestPasses.WithLabelValues("skipped").Inc()
}
