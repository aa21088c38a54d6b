package pipeline

import "github.com/prometheus/client_golang/prometheus"

// Batch outcomes.
const (
	outcomeAnalyzed = "analyzed"
	outcomeDropped  = "dropped"
	outcomeRejected = "rejected"
)

// Prometheus pipeline metrics.
var (
	batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turbinewatch_batches_total",
			Help: "Measurement batches by outcome (analyzed, dropped, rejected).",
		},
		[]string{"outcome"},
	)
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "turbinewatch_stage_duration_seconds",
			Help:    "Time spent per batch in each pipeline stage.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
	escalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turbinewatch_escalations_total",
			Help: "Escalations by terminal outcome (sent, abandoned, dropped).",
		},
		[]string{"outcome"},
	)
	cooldownSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "turbinewatch_cooldown_suppressed_total",
			Help: "Fault records not escalated because of the cooldown window.",
		},
	)
	capabilityFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turbinewatch_capability_failures_total",
			Help: "Degraded assessments by failing capability.",
		},
		[]string{"capability"},
	)
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "turbinewatch_queue_depth",
			Help: "Items waiting in each pipeline queue.",
		},
		[]string{"queue"},
	)
	cooldownEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "turbinewatch_cooldown_entries",
			Help: "Entries held in the escalation cooldown table.",
		},
	)
)

func init() {
	prometheus.MustRegister(batchesTotal, stageDuration, escalationsTotal,
		cooldownSuppressed, capabilityFailures, queueDepth, cooldownEntries)
}
