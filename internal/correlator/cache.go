// ====================================
// File: internal/correlator/cache.go
// ====================================
package correlator

import (
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/solwatch/solwatch/internal/types"
)

// metadataCacheCap bounds the cache; overflow evicts in insertion
// order.
const metadataCacheCap = 50000

// MetadataCache is the process-wide mint -> metadata map. One writer
// (the metadata handler), many readers; writes are point updates so a
// read-write lock is enough. Wrapped SOL is a legitimate entry.
type MetadataCache struct {
	mu    sync.RWMutex
	items map[solana.PublicKey]types.TokenMetadata
	order []solana.PublicKey
}

// NewMetadataCache creates an empty cache.
func NewMetadataCache() *MetadataCache {
	return &MetadataCache{
		items: make(map[solana.PublicKey]types.TokenMetadata, 1024),
	}
}

// Get looks up metadata for a mint.
func (c *MetadataCache) Get(mint solana.PublicKey) (types.TokenMetadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	md, ok := c.items[mint]
	return md, ok
}

// Put inserts or refreshes an entry, evicting the oldest entries when
// the hard bound is reached.
func (c *MetadataCache) Put(md types.TokenMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[md.Mint]; !exists {
		if len(c.items) >= metadataCacheCap {
			evict := metadataCacheCap / 2
			for _, mint := range c.order[:evict] {
				delete(c.items, mint)
			}
			c.order = append(c.order[:0], c.order[evict:]...)
		}
		c.order = append(c.order, md.Mint)
	}
	c.items[md.Mint] = md
}

// Len reports the current entry count.
func (c *MetadataCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
