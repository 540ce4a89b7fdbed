package onboard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roster",
		Name:      "batches_total",
		Help:      "Onboarding batches by terminal phase.",
	}, []string{"phase"})

	rowsValidated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roster",
		Name:      "rows_validated_total",
		Help:      "Roster rows by validation outcome.",
	}, []string{"outcome"})

	remoteCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roster",
		Name:      "remote_calls_total",
		Help:      "Attempts against the space API by operation and result.",
	}, []string{"op", "result"})

	failedCreationsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "roster",
		Name:      "failed_creations_recorded_total",
		Help:      "Entries written to the manual-review queue.",
	})

	studentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "roster",
		Name:      "student_provision_seconds",
		Help:      "Wall time to provision one student's space and permissions, including backoff.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)
