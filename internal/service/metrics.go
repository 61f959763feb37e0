package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media",
		Name:      "transitions_total",
		Help:      "Protect and unprotect runs by outcome",
	}, []string{"direction", "result"})

	contentRewritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "media",
		Name:      "content_rewrites_total",
		Help:      "Content bodies rewritten after a transition",
	})

	protectedRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media",
		Name:      "protected_requests_total",
		Help:      "Requests to the protected file server by outcome",
	}, []string{"outcome"})

	reindexProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "media",
		Name:      "reindex_processed_total",
		Help:      "Content records processed by the bulk reindex job",
	})

	reindexDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "media",
		Name:      "reindex_duration_seconds",
		Help:      "Duration of bulk reindex runs",
		Buckets:   prometheus.ExponentialBuckets(0.05, 4, 8),
	})
)

// ObserveProtectedRequest counts a protected file server response
func ObserveProtectedRequest(outcome string) {
	protectedRequestsTotal.WithLabelValues(outcome).Inc()
}
