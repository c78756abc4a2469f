// Package metrics holds the Prometheus collectors for the response cache and
// the ingestion pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "portfolio"

type Metrics struct {
	cacheRequests          *prometheus.CounterVec
	cacheInvalidations     *prometheus.CounterVec
	ingestFiles            *prometheus.CounterVec
	ingestDuration         prometheus.Histogram
	artifactDeleteFailures prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cacheable read requests by route and result (hit or miss).",
		}, []string{"route", "result"}),
		cacheInvalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidations_total",
			Help:      "Cache invalidations by kind (key, prefix, clear).",
		}, []string{"kind"}),
		ingestFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_files_total",
			Help:      "Uploaded files by pipeline outcome.",
		}, []string{"outcome"}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Time to take one file from upload to catalog entry.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		artifactDeleteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_delete_failures_total",
			Help:      "Artifact deletions that failed after all retries.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.cacheRequests, m.cacheInvalidations, m.ingestFiles, m.ingestDuration, m.artifactDeleteFailures,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) CacheResult(route string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(route, result).Inc()
}

func (m *Metrics) CacheInvalidation(kind string) {
	if m == nil {
		return
	}
	m.cacheInvalidations.WithLabelValues(kind).Inc()
}

// IngestFile records the outcome ("cataloged" or "failed") of one file.
func (m *Metrics) IngestFile(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ingestFiles.WithLabelValues(outcome).Inc()
	m.ingestDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ArtifactDeleteFailed() {
	if m == nil {
		return
	}
	m.artifactDeleteFailures.Inc()
}
