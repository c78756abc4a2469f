package workers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hyxhhh1013/Myproject-sub000/media"
	"github.com/hyxhhh1013/Myproject-sub000/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// flakyStore fails the first failures[ref] deletions of each ref.
type flakyStore struct {
	mu       sync.Mutex
	failures map[string]int
	deleted  []string
	calls    map[string]int
}

func newFlakyStore(failures map[string]int) *flakyStore {
	return &flakyStore{failures: failures, calls: map[string]int{}}
}

func (s *flakyStore) Save(context.Context, media.AssetType, string, io.Reader) (string, error) {
	return "", errors.New("not supported")
}

func (s *flakyStore) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not supported")
}

func (s *flakyStore) List(context.Context, media.AssetType) ([]string, error) { return nil, nil }

func (s *flakyStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[ref]++
	if s.calls[ref] <= s.failures[ref] {
		return errors.New("storage unavailable")
	}
	s.deleted = append(s.deleted, ref)
	return nil
}

func (s *flakyStore) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReclaimRetriesInBackground(t *testing.T) {
	store := newFlakyStore(map[string]int{"originals/a.jpg": 2})
	reaper := NewArtifactReaper(store, nil, quietLogger(), ReaperOptions{Workers: 1, RetryDelay: time.Millisecond})
	defer reaper.Stop()

	reaper.Reclaim(context.Background(), "test", "originals/a.jpg", "", "thumbnails/a-thumbnail.jpg")

	require.Eventually(t, func() bool { return reaper.Pending() == 0 }, time.Second, 2*time.Millisecond)
	assert.ElementsMatch(t, []string{"thumbnails/a-thumbnail.jpg", "originals/a.jpg"}, store.Deleted())
}

func TestReaperRecordsOrphanAfterMaxAttempts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	store := newFlakyStore(map[string]int{"originals/stuck.jpg": 100})
	reaper := NewArtifactReaper(store, m, quietLogger(), ReaperOptions{Workers: 1, MaxAttempts: 3, RetryDelay: time.Millisecond})
	defer reaper.Stop()

	require.True(t, reaper.Enqueue(ReapJob{Ref: "originals/stuck.jpg", Reason: "test"}))
	require.Eventually(t, func() bool { return reaper.Pending() == 0 }, time.Second, 2*time.Millisecond)

	assert.Empty(t, store.Deleted())
	expected := `
# HELP portfolio_artifact_delete_failures_total Artifact deletions that failed after all retries.
# TYPE portfolio_artifact_delete_failures_total counter
portfolio_artifact_delete_failures_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "portfolio_artifact_delete_failures_total"))
}

func TestEnqueueAfterStopIsOrphaned(t *testing.T) {
	store := newFlakyStore(nil)
	reaper := NewArtifactReaper(store, nil, quietLogger(), ReaperOptions{Workers: 1})
	reaper.Stop()
	reaper.Stop()

	assert.False(t, reaper.Enqueue(ReapJob{Ref: "originals/late.jpg"}))
	assert.Equal(t, 0, reaper.Pending())
}
