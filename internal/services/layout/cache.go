package layout

import (
	"sync"

	"github.com/ternarybob/clavis/internal/models"
)

// HeaderCache memoizes parsed headers per absolute path for the duration
// of one catalog run. Revision folders frequently point at the same shared
// header, so without this the file would be re-parsed once per keyboard.
// Safe for concurrent use; a fresh cache is created per run rather than
// kept as process state, so stale entries cannot outlive a checkout.
type HeaderCache struct {
	mu      sync.Mutex
	entries map[string]models.LayoutMap
}

// NewHeaderCache returns an empty cache.
func NewHeaderCache() *HeaderCache {
	return &HeaderCache{entries: make(map[string]models.LayoutMap)}
}

// Get returns the cached parse result for path.
func (c *HeaderCache) Get(path string) (models.LayoutMap, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	layouts, ok := c.entries[path]
	return layouts, ok
}

// Put stores the parse result for path.
func (c *HeaderCache) Put(path string, layouts models.LayoutMap) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = layouts
}

// Len returns the number of cached headers.
func (c *HeaderCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
