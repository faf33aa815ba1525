package dedup

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Entry is the last (price, quantity) pair applied to a listing.
type Entry struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// SyncCache remembers the last values written to each managed listing so an
// unchanged update is never sent twice. It lives for the process lifetime.
type SyncCache struct {
	mu      sync.Mutex
	applied map[string]Entry
}

// NewSyncCache creates an empty cache.
func NewSyncCache() *SyncCache {
	return &SyncCache{applied: make(map[string]Entry)}
}

// Changed reports whether (price, qty) differs from what was last recorded for id.
func (c *SyncCache) Changed(id string, price, qty decimal.Decimal) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changedLocked(id, price, qty)
}

// Record stores (price, qty) as applied for id. Call it only after the venue
// accepted the write.
func (c *SyncCache) Record(id string, price, qty decimal.Decimal) {
	c.mu.Lock()
	c.applied[id] = Entry{Price: price, Quantity: qty}
	c.mu.Unlock()
}

// ShouldApply reports whether (price, qty) differs from the last recorded
// values for id and, if so, records them.
func (c *SyncCache) ShouldApply(id string, price, qty decimal.Decimal) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.changedLocked(id, price, qty) {
		return false
	}
	c.applied[id] = Entry{Price: price, Quantity: qty}
	return true
}

// Forget drops id so the next update is always applied.
func (c *SyncCache) Forget(id string) {
	c.mu.Lock()
	delete(c.applied, id)
	c.mu.Unlock()
}

// Len returns the number of tracked listings.
func (c *SyncCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.applied)
}

// Snapshot returns a copy of the cache contents.
func (c *SyncCache) Snapshot() map[string]Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]Entry, len(c.applied))
	for id, e := range c.applied {
		out[id] = e
	}
	return out
}

func (c *SyncCache) changedLocked(id string, price, qty decimal.Decimal) bool {
	last, ok := c.applied[id]
	if !ok {
		return true
	}
	return !last.Price.Equal(price) || !last.Quantity.Equal(qty)
}
