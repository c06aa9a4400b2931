package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	observationPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pulselog",
		Subsystem: "persistence",
		Name:      "last_observation_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent observation persisted to Postgres.",
	})
	observationReflectedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pulselog",
		Subsystem: "persistence",
		Name:      "last_observation_reflected_timestamp_seconds",
		Help:      "Unix timestamp of the most recent observation folded into the streak projection.",
	})
	streakRecomputeHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pulselog",
		Subsystem: "streak",
		Name:      "recompute_duration_seconds",
		Help:      "Latency of full-history streak recomputation.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	})
)

func init() {
	prometheus.MustRegister(observationPersistGauge, observationReflectedGauge, streakRecomputeHistogram)
}

// RecordObservationPersisted updates the persistence watermark gauge.
func RecordObservationPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	observationPersistGauge.Set(float64(ts.Unix()))
}

// RecordObservationReflected updates the projection watermark gauge.
func RecordObservationReflected(ts time.Time) {
	if ts.IsZero() {
		return
	}
	observationReflectedGauge.Set(float64(ts.Unix()))
}

// ObserveStreakRecompute records one engine run over the full history.
func ObserveStreakRecompute(d time.Duration) {
	streakRecomputeHistogram.Observe(d.Seconds())
}
