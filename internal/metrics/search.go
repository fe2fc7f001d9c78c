package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search and corpus Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flagsearch",
			Name:      "search_requests_total",
			Help:      "Total number of similarity searches",
		},
		[]string{"kind", "status"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "flagsearch",
			Name:      "search_duration_seconds",
			Help:      "End-to-end search duration including query encoding",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"kind"},
	)

	SearchResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "flagsearch",
			Name:      "search_results",
			Help:      "Number of flags returned per search",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		},
	)

	CorpusFlags = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "flagsearch",
			Name:      "corpus_flags",
			Help:      "Number of flags in the loaded corpus",
		},
	)

	CorpusDimensions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "flagsearch",
			Name:      "corpus_dimensions",
			Help:      "Embedding dimension of the loaded corpus",
		},
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers search and corpus metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchResults)
	prometheus.MustRegister(CorpusFlags)
	prometheus.MustRegister(CorpusDimensions)
	searchMetricsRegistered = true
}
