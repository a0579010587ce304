package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements repository.Metrics using Prometheus.
type Recorder struct {
	payments       *prometheus.CounterVec
	rateLimited    prometheus.Counter
	intents        *prometheus.CounterVec
	upstreamErrors *prometheus.CounterVec
	composerTier   *prometheus.CounterVec
	usageEvents    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

// New registers the recorder on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the recorder on reg (tests pass a fresh registry).
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		payments: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_payment_verifications_total",
				Help: "Payment verifications by resulting status",
			},
			[]string{"status"},
		),
		rateLimited: f.NewCounter(
			prometheus.CounterOpts{
				Name: "x402_rate_limited_total",
				Help: "Paid messages rejected by the per-wallet rate limit",
			},
		),
		intents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_intents_total",
				Help: "Classified intents",
			},
			[]string{"intent"},
		),
		upstreamErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_upstream_errors_total",
				Help: "Failed calls to upstream providers",
			},
			[]string{"source"},
		),
		composerTier: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_composer_replies_total",
				Help: "Replies by the tier that produced them",
			},
			[]string{"tier"},
		),
		usageEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_usage_events_total",
				Help: "Usage events by backend and result",
			},
			[]string{"backend", "result"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "x402_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordPayment(status string) {
	r.payments.WithLabelValues(status).Inc()
}

func (r *Recorder) RecordRateLimited() {
	r.rateLimited.Inc()
}

func (r *Recorder) RecordIntent(intent string) {
	r.intents.WithLabelValues(intent).Inc()
}

func (r *Recorder) RecordUpstreamError(source string) {
	r.upstreamErrors.WithLabelValues(source).Inc()
}

func (r *Recorder) RecordComposerTier(tier string) {
	r.composerTier.WithLabelValues(tier).Inc()
}

func (r *Recorder) RecordUsage(backend string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.usageEvents.WithLabelValues(backend, result).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) RecordPayment(string) {}
func (Nop) RecordRateLimited() {}
func (Nop) RecordIntent(string) {}
func (Nop) RecordUpstreamError(string) {}
func (Nop) RecordComposerTier(string) {}
func (Nop) RecordUsage(string, error) {}
func (Nop) RecordLatency(string, float64) {}
