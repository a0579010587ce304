package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ChatLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "x402",
			Subsystem: "chat",
			Name:      "latency_seconds",
			Help:      "Latency of chat gateway endpoints",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		},
		[]string{"endpoint"},
	)

	ChatOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "x402",
			Subsystem: "chat",
			Name:      "outcomes_total",
			Help:      "Chat gateway responses by endpoint and HTTP status",
		},
		[]string{"endpoint", "status"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(ChatLatency, ChatOutcomes)
	})
}
