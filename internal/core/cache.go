package core

import (
	"sync"

	"github.com/JonMunkholm/insights/internal/table"
)

// tableCache keeps recently loaded tables. Stored files never change under
// a name, so entries only leave on eviction, delete or clear.
type tableCache struct {
	mu    sync.Mutex
	max   int
	order []cacheKey
	items map[cacheKey]*table.Table
}

type cacheKey struct {
	file  string
	sheet string
}

func newTableCache(max int) *tableCache {
	return &tableCache{max: max, items: make(map[cacheKey]*table.Table)}
}

func (c *tableCache) get(file, sheet string) (*table.Table, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.items[cacheKey{file, sheet}]
	return t, ok
}

func (c *tableCache) put(file, sheet string, t *table.Table) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{file, sheet}
	if _, ok := c.items[key]; ok {
		c.items[key] = t
		return
	}
	for len(c.order) >= c.max {
		delete(c.items, c.order[0])
		c.order = c.order[1:]
	}
	c.items[key] = t
	c.order = append(c.order, key)
}

// forget drops every sheet of file.
func (c *tableCache) forget(file string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.order[:0]
	for _, k := range c.order {
		if k.file == file {
			delete(c.items, k)
			continue
		}
		kept = append(kept, k)
	}
	c.order = kept
}

func (c *tableCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = nil
	c.items = make(map[cacheKey]*table.Table)
}
