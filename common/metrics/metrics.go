package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline counters. Labels stay low-cardinality: verdicts, scanner ids,
// and cleanup outcome buckets only.
var (
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediavault",
		Subsystem: "scan",
		Name:      "scans_total",
		Help:      "Scan pipeline outcomes by verdict.",
	}, []string{"verdict"})

	BreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediavault",
		Subsystem: "scan",
		Name:      "breaker_failures_total",
		Help:      "Engine failures counted toward the circuit breaker.",
	}, []string{"scanner"})

	QuarantinePruned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mediavault",
		Subsystem: "quarantine",
		Name:      "pruned_total",
		Help:      "Stale quarantine entries removed by the sweeper.",
	})

	CleanupOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediavault",
		Subsystem: "cleanup",
		Name:      "directories_total",
		Help:      "Cleanup executor outcomes per directory.",
	}, []string{"outcome"})

	CleanupPayloadsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mediavault",
		Subsystem: "cleanup",
		Name:      "payloads_purged_total",
		Help:      "Expired cleanup payloads force-flushed by the sweeper.",
	})

	ConversionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediavault",
		Subsystem: "conversion",
		Name:      "conversions_total",
		Help:      "Rendition generation outcomes.",
	}, []string{"status"})
)
