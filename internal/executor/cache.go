package executor

import (
	"sync"

	"github.com/hostlint/hostlint/internal/models"
	"golang.org/x/sync/singleflight"
)

// FactCache memoizes command results within a single run. For any key
// the underlying command executes at most once: concurrent first
// requesters coordinate through singleflight so only one runs while
// the others await the in-flight result. The cache is unbounded and
// discarded with the run; it is never shared across runs.
type FactCache struct {
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]models.CommandResult
}

func NewFactCache() *FactCache {
	return &FactCache{entries: make(map[string]models.CommandResult)}
}

// GetOrRun returns the cached result for key, running fn exactly once
// on first access. Replayed results are flagged Cached.
func (c *FactCache) GetOrRun(key string, fn func() models.CommandResult) models.CommandResult {
	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		cached.Cached = true
		return cached
	}

	v, _, shared := c.group.Do(key, func() (interface{}, error) {
		result := fn()
		c.mu.Lock()
		c.entries[key] = result
		c.mu.Unlock()
		return result, nil
	})

	result := v.(models.CommandResult)
	if shared {
		result.Cached = true
	}
	return result
}

// Len reports how many distinct keys were computed, mostly for tests
// and run summaries.
func (c *FactCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
