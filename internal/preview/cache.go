package preview

import (
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fruitsalade/docarchive/internal/metrics"
)

// Cache holds encoded previews keyed by path and width.
type Cache struct {
	lru *lru.Cache[string, []byte]
}

// NewCache creates a cache holding up to size previews.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = 256
	}
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

func cacheKey(path string, width int) string {
	return strconv.Itoa(width) + ":" + path
}

// Get returns the cached preview for path at width.
func (c *Cache) Get(path string, width int) ([]byte, bool) {
	data, ok := c.lru.Get(cacheKey(path, width))
	metrics.RecordPreviewCache(ok)
	return data, ok
}

// Add stores a preview.
func (c *Cache) Add(path string, width int, data []byte) {
	c.lru.Add(cacheKey(path, width), data)
}

// Len returns the number of cached previews.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Purge empties the cache.
func (c *Cache) Purge() {
	c.lru.Purge()
}
