// Package services – worker-side Prometheus instrumentation.
//
// These collectors complement the HTTP middleware metrics with job pipeline
// visibility: how jobs settle, how long they take, and how many credits the
// external checks burn. Outcome labels are a small fixed set, keeping
// cardinality bounded.
package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Job outcome label values.
const (
	outcomeSkipped             = "skipped"
	outcomeMissingDomain       = "missing_domain"
	outcomeDomainStopped       = "domain_stopped"
	outcomeInsufficientCredits = "insufficient_credits"
	outcomeIndexed             = "indexed"
	outcomeNotIndexed          = "not_indexed"
	outcomeCheckError          = "check_error"
	outcomeFatal               = "fatal"
)

var (
	// jobsProcessed counts settled jobs by outcome.
	jobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_jobs_processed_total",
			Help: "Total number of processed URL jobs by outcome.",
		},
		[]string{"outcome"},
	)

	// jobDuration records end-to-end job latency. Buckets skew high because
	// a job usually spans one proxied Google search.
	jobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "indexer_job_duration_seconds",
			Help:    "End-to-end duration of URL jobs in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// creditsSpent counts credits debited for external checks.
	creditsSpent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "indexer_credits_spent_total",
			Help: "Total credits debited for external index checks.",
		},
	)
)

func init() {
	prometheus.MustRegister(jobsProcessed, jobDuration, creditsSpent)
}
