package geocode

import (
	"sync"

	"github.com/sanitiza-group/cert-cli/internal/normalize"
)

// memCache memoizes resolution results, including unmatched ones, for the
// process lifetime. Keys are folded addresses so whitespace and case
// variants of the same address share an entry. No eviction: entries are
// small and the address universe is bounded by the certificate base.
type memCache struct {
	mu      sync.RWMutex
	entries map[string]Result
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]Result)}
}

// key normalizes an address into its cache key.
func (c *memCache) key(address string) string {
	return normalize.Fold(address)
}

func (c *memCache) get(key string) (*Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	out := r
	return &out, true
}

func (c *memCache) put(key string, r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = *r
}
