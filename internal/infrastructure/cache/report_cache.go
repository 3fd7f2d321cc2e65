package cache

import (
	"context"
	"sync"
	"time"
)

// ReportCache stores serialized report snapshots keyed by report name and
// parameters. Reports are derived from the journal, so entries are advisory:
// a miss just recomputes.
type ReportCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
	Close() error
}

type inMemoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// InMemoryReportCache is a process-local ReportCache for single-instance
// deployments and tests.
type InMemoryReportCache struct {
	mu      sync.RWMutex
	entries map[string]inMemoryEntry
}

// NewInMemoryReportCache creates a new in-memory report cache
func NewInMemoryReportCache() *InMemoryReportCache {
	return &InMemoryReportCache{entries: make(map[string]inMemoryEntry)}
}

// Get returns the cached snapshot if present and not expired
func (c *InMemoryReportCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores the snapshot with the given TTL
func (c *InMemoryReportCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = inMemoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Invalidate removes a snapshot
func (c *InMemoryReportCache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Close is a no-op for the in-memory cache
func (c *InMemoryReportCache) Close() error {
	return nil
}

var _ ReportCache = (*InMemoryReportCache)(nil)
