package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Entry is one cached response body.
type Entry struct {
	Status      int           `json:"status"`
	ContentType string        `json:"contentType"`
	Body        []byte        `json:"body"`
	StoredAt    time.Time     `json:"storedAt"`
	TTL         time.Duration `json:"ttl"`
}

// Expired reports whether the entry outlived its TTL at now.
func (e Entry) Expired(now time.Time) bool {
	return now.Sub(e.StoredAt) >= e.TTL
}

// Backend stores entries. Implementations must be safe for concurrent use.
type Backend interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Flush(ctx context.Context) error
	// DeleteExpired reclaims entries past their TTL and returns how many.
	DeleteExpired(ctx context.Context) (int, error)
	Close() error
}

// MemoryBackend keeps entries in process with go-cache. Expiry runs through
// ResponseCache's sweeper rather than go-cache's janitor, which cannot be stopped.
type MemoryBackend struct {
	items *gocache.Cache
	// serializes prefix scans against sets so a scan sees a stable key set
	mu sync.RWMutex
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: gocache.New(gocache.NoExpiration, 0)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (Entry, bool, error) {
	v, ok := m.items.Get(key)
	if !ok {
		return Entry{}, false, nil
	}
	return v.(Entry), true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, entry Entry) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.items.Set(key, entry, entry.TTL)
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.items.Delete(key)
	return nil
}

func (m *MemoryBackend) DeletePrefix(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key := range m.items.Items() {
		if strings.HasPrefix(key, prefix) {
			m.items.Delete(key)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryBackend) Flush(_ context.Context) error {
	m.items.Flush()
	return nil
}

func (m *MemoryBackend) DeleteExpired(_ context.Context) (int, error) {
	before := m.items.ItemCount()
	m.items.DeleteExpired()
	return before - m.items.ItemCount(), nil
}

// Len counts stored entries, expired ones included until swept.
func (m *MemoryBackend) Len() int {
	return m.items.ItemCount()
}

func (m *MemoryBackend) Close() error { return nil }
