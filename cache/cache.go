// Package cache is the read-through response cache that fronts the public GET
// endpoints. Entries live in a Backend (in-process go-cache or Redis) and are
// dropped by key or by path prefix after every committed mutation.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyxhhh1013/Myproject-sub000/metrics"
)

// Token is the invalidation epoch observed when a population started.
type Token uint64

type Options struct {
	// SweepInterval controls the expired-entry sweeper; zero disables it.
	SweepInterval time.Duration
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	Now           func() time.Time
}

type ResponseCache struct {
	backend Backend
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time

	// bumped by every invalidation, checked around populations
	epoch atomic.Uint64

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func New(backend Backend, opts Options) *ResponseCache {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &ResponseCache{
		backend: backend,
		metrics: opts.Metrics,
		log:     opts.Logger.With("component", "response_cache"),
		now:     opts.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if opts.SweepInterval > 0 {
		go c.sweepLoop(opts.SweepInterval)
	} else {
		close(c.done)
	}
	return c
}

// Get returns a live entry. Entries found past their TTL are removed and reported
// as a miss. Backend errors degrade to a miss.
func (c *ResponseCache) Get(ctx context.Context, key string) (Entry, bool) {
	entry, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache get failed", "key", key, "error", err)
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}
	if entry.Expired(c.now()) {
		_ = c.backend.Delete(ctx, key)
		return Entry{}, false
	}
	return entry, true
}

// Set stores entry unconditionally.
func (c *ResponseCache) Set(ctx context.Context, key string, entry Entry) {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = c.now()
	}
	if err := c.backend.Set(ctx, key, entry); err != nil {
		c.log.Warn("cache set failed", "key", key, "error", err)
	}
}

// Begin captures the current epoch. Call it before reading the data that will be
// cached and hand the token to SetIfCurrent.
func (c *ResponseCache) Begin() Token {
	return Token(c.epoch.Load())
}

// SetIfCurrent stores entry only if no invalidation happened since token was
// taken. An invalidation landing during the write itself removes the entry again.
// Reports whether the entry was kept.
func (c *ResponseCache) SetIfCurrent(ctx context.Context, token Token, key string, entry Entry) bool {
	if Token(c.epoch.Load()) != token {
		return false
	}
	c.Set(ctx, key, entry)
	if Token(c.epoch.Load()) != token {
		_ = c.backend.Delete(ctx, key)
		return false
	}
	return true
}

func (c *ResponseCache) Invalidate(ctx context.Context, keys ...string) {
	c.epoch.Add(1)
	for _, key := range keys {
		if err := c.backend.Delete(ctx, key); err != nil {
			c.log.Warn("cache invalidate failed", "key", key, "error", err)
			continue
		}
		c.metrics.CacheInvalidation("key")
	}
}

func (c *ResponseCache) InvalidatePrefix(ctx context.Context, prefixes ...string) {
	c.epoch.Add(1)
	for _, prefix := range prefixes {
		n, err := c.backend.DeletePrefix(ctx, prefix)
		if err != nil {
			c.log.Warn("cache prefix invalidate failed", "prefix", prefix, "error", err)
			continue
		}
		c.metrics.CacheInvalidation("prefix")
		c.log.Debug("cache prefix invalidated", "prefix", prefix, "removed", n)
	}
}

func (c *ResponseCache) Clear(ctx context.Context) {
	c.epoch.Add(1)
	if err := c.backend.Flush(ctx); err != nil {
		c.log.Warn("cache clear failed", "error", err)
		return
	}
	c.metrics.CacheInvalidation("clear")
}

// Sweep removes expired entries now.
func (c *ResponseCache) Sweep(ctx context.Context) int {
	n, err := c.backend.DeleteExpired(ctx)
	if err != nil {
		c.log.Warn("cache sweep failed", "error", err)
		return 0
	}
	if n > 0 {
		c.log.Debug("cache swept", "removed", n)
	}
	return n
}

// Close stops the sweeper and releases the backend.
func (c *ResponseCache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		<-c.done
		err = c.backend.Close()
	})
	return err
}

func (c *ResponseCache) sweepLoop(interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep(context.Background())
		case <-c.stop:
			return
		}
	}
}
