package metrics

import "github.com/prometheus/client_golang/prometheus"

// Encoder Prometheus metrics.
var (
	EncoderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flagsearch",
			Name:      "encoder_requests_total",
			Help:      "Total number of encoder requests",
		},
		[]string{"provider", "modality", "status"},
	)

	EncoderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "flagsearch",
			Name:      "encoder_request_duration_seconds",
			Help:      "Encoder request duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"provider", "modality"},
	)

	EncoderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flagsearch",
			Name:      "encoder_tokens_total",
			Help:      "Total tokens consumed by remote text encoders",
		},
		[]string{"provider", "model"},
	)

	EncoderErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flagsearch",
			Name:      "encoder_errors_total",
			Help:      "Total encoder errors",
		},
		[]string{"provider", "modality", "error_type"},
	)

	EncoderCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flagsearch",
			Name:      "encoder_cache_total",
			Help:      "Text encoding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var encMetricsRegistered bool

// RegisterEncoderMetrics registers Prometheus encoder metrics. Must be called once from main.
func RegisterEncoderMetrics() {
	if encMetricsRegistered {
		return
	}
	prometheus.MustRegister(EncoderRequestsTotal)
	prometheus.MustRegister(EncoderRequestDuration)
	prometheus.MustRegister(EncoderTokensTotal)
	prometheus.MustRegister(EncoderErrorsTotal)
	prometheus.MustRegister(EncoderCacheTotal)
	encMetricsRegistered = true
}
