package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.CacheResult("photos.list", true)
	m.CacheResult("photos.list", false)
	m.CacheResult("photos.list", false)
	m.CacheInvalidation("prefix")
	m.IngestFile("cataloged", 120*time.Millisecond)
	m.ArtifactDeleteFailed()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues("photos.list", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues("photos.list", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheInvalidations.WithLabelValues("prefix")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ingestFiles.WithLabelValues("cataloged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.artifactDeleteFailures))

	_, err = New(reg)
	assert.Error(t, err, "duplicate registration is reported")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheResult("x", true)
		m.CacheInvalidation("key")
		m.IngestFile("failed", time.Second)
		m.ArtifactDeleteFailed()
	})
}
