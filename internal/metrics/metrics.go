package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedfunnel_decisions_total",
			Help: "Records that reached a terminal state, by state and reason.",
		},
		[]string{"state", "reason"},
	)
	resolverDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedfunnel_resolver_duration_seconds",
			Help:    "Market price lookups including retries.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"outcome"},
	)
	lastRunRecords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feedfunnel_last_run_records",
			Help: "Bucket counters of the most recent run per source.",
		},
		[]string{"source", "bucket"},
	)
	lastRunTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feedfunnel_last_run_timestamp_seconds",
			Help: "Unix time of the most recent run per source.",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(decisionsTotal)
	prometheus.MustRegister(resolverDuration)
	prometheus.MustRegister(lastRunRecords)
	prometheus.MustRegister(lastRunTimestamp)
}

func RecordDecision(state, reason string) {
	decisionsTotal.WithLabelValues(state, reason).Inc()
}

func ObserveResolverCall(outcome string, d time.Duration) {
	resolverDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordRun publishes the bucket counters of a finished run.
func RecordRun(source string, at time.Time, buckets map[string]int) {
	for bucket, n := range buckets {
		lastRunRecords.WithLabelValues(source, bucket).Set(float64(n))
	}
	lastRunTimestamp.WithLabelValues(source).Set(float64(at.Unix()))
}

func Handler() http.Handler {
	return promhttp.Handler()
}
