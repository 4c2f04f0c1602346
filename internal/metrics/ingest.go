package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingest Prometheus metrics.
var (
	IngestEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chronodex",
			Name:      "ingest_events_total",
			Help:      "Total number of events accepted per datasource",
		},
		[]string{"datasource"},
	)

	IngestDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chronodex",
			Name:      "ingest_dropped_total",
			Help:      "Total number of events dropped per datasource",
		},
		[]string{"datasource", "reason"}, // "timestamp" / "shape"
	)

	RollupRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chronodex",
			Name:      "rollup_rows_total",
			Help:      "Rows produced after rollup per datasource",
		},
		[]string{"datasource"},
	)

	FlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chronodex",
			Name:      "flushes_total",
			Help:      "Buffer flushes per datasource",
		},
		[]string{"datasource", "status"}, // "ok" / "error"
	)

	FlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chronodex",
			Name:      "flush_duration_seconds",
			Help:      "Segment flush duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	BufferedRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "chronodex",
			Name:      "buffered_rows",
			Help:      "Rows currently held in the rollup buffer",
		},
		[]string{"datasource"},
	)
)

var ingestMetricsRegistered bool

// RegisterIngestMetrics registers Prometheus ingest metrics. Must be called
// once from main.
func RegisterIngestMetrics() {
	if ingestMetricsRegistered {
		return
	}
	prometheus.MustRegister(IngestEventsTotal)
	prometheus.MustRegister(IngestDroppedTotal)
	prometheus.MustRegister(RollupRowsTotal)
	prometheus.MustRegister(FlushesTotal)
	prometheus.MustRegister(FlushDuration)
	prometheus.MustRegister(BufferedRows)
	ingestMetricsRegistered = true
}
