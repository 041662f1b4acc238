package routing

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
)

// Cache memoizes computed paths keyed by (src, dst, topology version). Any
// topology mutation invalidates the whole cache through the store's mutation
// hook; entries are never invalidated partially.
type Cache struct {
	entries *gocache.Cache
}

// NewCache creates a path cache with the given entry TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{entries: gocache.New(ttl, 2*ttl)}
}

func cacheKey(src, dst string, version uint64) string {
	return fmt.Sprintf("%s|%s|%d", src, dst, version)
}

func (c *Cache) Get(src, dst string, version uint64) ([]string, bool) {
	v, ok := c.entries.Get(cacheKey(src, dst, version))
	if !ok {
		return nil, false
	}
	return v.([]string), true
}

func (c *Cache) Put(src, dst string, version uint64, path []string) {
	c.entries.SetDefault(cacheKey(src, dst, version), path)
}

// InvalidateAll drops every entry. Wired to Store.OnMutate.
func (c *Cache) InvalidateAll() {
	if n := c.entries.ItemCount(); n > 0 {
		log.Debugf("routing: cache invalidated (%d entries)", n)
	}
	c.entries.Flush()
}
