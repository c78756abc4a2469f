package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hyxhhh1013/Myproject-sub000/media"
	"github.com/hyxhhh1013/Myproject-sub000/metrics"
)

const (
	defaultReaperWorkers    = 2
	defaultReaperQueueSize  = 200
	defaultReaperAttempts   = 3
	defaultReaperRetryDelay = 500 * time.Millisecond
)

// ReapJob is one stored artifact whose deletion failed inline.
type ReapJob struct {
	Ref    string
	Reason string
}

type ReaperOptions struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	RetryDelay  time.Duration
}

// ArtifactReaper retries artifact deletions in the background. A ref that still
// cannot be deleted after MaxAttempts is logged with artifact_orphan=true so the
// reconcile command or an operator can pick it up.
type ArtifactReaper struct {
	store    media.Store
	metrics  *metrics.Metrics
	log      *slog.Logger
	attempts int
	delay    time.Duration

	jobs    chan ReapJob
	stop    chan struct{}
	wg      sync.WaitGroup
	pending map[string]bool
	mu      sync.Mutex
	stopped bool
}

func NewArtifactReaper(store media.Store, m *metrics.Metrics, logger *slog.Logger, opts ReaperOptions) *ArtifactReaper {
	if opts.Workers <= 0 {
		opts.Workers = defaultReaperWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultReaperQueueSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultReaperAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultReaperRetryDelay
	}

	r := &ArtifactReaper{
		store:    store,
		metrics:  m,
		log:      logger.With("component", "artifact_reaper"),
		attempts: opts.MaxAttempts,
		delay:    opts.RetryDelay,
		jobs:     make(chan ReapJob, opts.QueueSize),
		stop:     make(chan struct{}),
		pending:  make(map[string]bool),
	}
	r.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go r.worker(i)
	}
	r.log.Info("artifact reaper started", "workers", opts.Workers, "queue_size", opts.QueueSize)
	return r
}

// Enqueue schedules a deletion unless the ref is already pending. A full queue
// or a stopped reaper records the ref as orphaned right away.
func (r *ArtifactReaper) Enqueue(job ReapJob) bool {
	r.mu.Lock()
	if r.pending[job.Ref] {
		r.mu.Unlock()
		return false
	}
	queued := false
	if !r.stopped {
		select {
		case r.jobs <- job:
			r.pending[job.Ref] = true
			queued = true
		default:
		}
	}
	r.mu.Unlock()

	if !queued {
		r.log.Warn("artifact reaper unavailable", "ref", job.Ref, "reason", job.Reason)
		r.orphan(job, nil)
		return false
	}
	r.log.Debug("artifact deletion queued", "ref", job.Ref, "reason", job.Reason)
	return true
}

// Reclaim deletes refs inline and queues whatever fails for retry.
func (r *ArtifactReaper) Reclaim(ctx context.Context, reason string, refs ...string) {
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if err := r.store.Delete(ctx, ref); err != nil {
			r.log.Warn("artifact delete failed, retrying in background", "ref", ref, "reason", reason, "error", err)
			r.Enqueue(ReapJob{Ref: ref, Reason: reason})
		}
	}
}

// Pending reports how many refs are queued or being retried.
func (r *ArtifactReaper) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Stop halts the workers. Jobs still queued are recorded as orphans.
func (r *ArtifactReaper) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stop)
	r.wg.Wait()

	for {
		select {
		case job := <-r.jobs:
			r.done(job.Ref)
			r.orphan(job, nil)
		default:
			r.log.Info("artifact reaper stopped")
			return
		}
	}
}

func (r *ArtifactReaper) worker(id int) {
	defer r.wg.Done()
	for {
		select {
		case job := <-r.jobs:
			r.process(id, job)
			r.done(job.Ref)
		case <-r.stop:
			return
		}
	}
}

func (r *ArtifactReaper) process(id int, job ReapJob) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(r.delay * time.Duration(attempt-1)):
			case <-r.stop:
				r.orphan(job, lastErr)
				return
			}
		}
		lastErr = r.store.Delete(context.Background(), job.Ref)
		if lastErr == nil {
			r.log.Debug("artifact deleted", "worker", id, "ref", job.Ref, "attempt", attempt)
			return
		}
	}
	r.orphan(job, lastErr)
}

func (r *ArtifactReaper) orphan(job ReapJob, err error) {
	r.metrics.ArtifactDeleteFailed()
	r.log.Error("artifact could not be deleted",
		"ref", job.Ref, "reason", job.Reason, "artifact_orphan", true, "error", err)
}

func (r *ArtifactReaper) done(ref string) {
	r.mu.Lock()
	delete(r.pending, ref)
	r.mu.Unlock()
}
