package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryCache keeps the most recently used previews in memory.
type MemoryCache struct {
	items *lru.Cache[PreviewKey, []byte]
}

func NewMemoryCache(maxSize int) (*MemoryCache, error) {
	items, err := lru.New[PreviewKey, []byte](maxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &MemoryCache{items: items}, nil
}

func (c *MemoryCache) Has(key PreviewKey) bool {
	return c.items.Contains(key)
}

func (c *MemoryCache) Get(key PreviewKey) ([]byte, bool) {
	return c.items.Get(key)
}

func (c *MemoryCache) Set(key PreviewKey, value []byte) {
	c.items.Add(key, value)
}

func (c *MemoryCache) Len() int {
	return c.items.Len()
}

func (c *MemoryCache) Clear() {
	c.items.Purge()
}
