package status

import (
	"context"
	"strings"
	"sync"

	"github.com/roboxon/student-app/internal/domain/report"
)

// MemoryCache is a process-local StatusCache safe for concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]report.StatusEntry
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]report.StatusEntry)}
}

// Get implements report.StatusCache.
func (c *MemoryCache) Get(_ context.Context, key report.Key) (report.StatusEntry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key.String()]
	return entry, ok, nil
}

// Set implements report.StatusCache.
func (c *MemoryCache) Set(_ context.Context, key report.Key, entry report.StatusEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key.String()] = entry
	return nil
}

// Delete implements report.StatusCache.
func (c *MemoryCache) Delete(_ context.Context, key report.Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key.String())
	return nil
}

// InvalidateStudent drops every cached week of studentID.
func (c *MemoryCache) InvalidateStudent(_ context.Context, studentID string) error {
	prefix := studentID + "/"
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}

// Len returns the number of cached weeks.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
