package storage

import (
	"container/list"
	"sync"
	"time"

	"credit_audit/internal/models"
)

// cacheEntry holds one cached record with its expiration.
type cacheEntry struct {
	key       string
	record    *models.CreditValidationAudit
	expiresAt time.Time
}

// LatestCache keeps the most recent audit record per transaction in
// memory, so repeated "what happened to this transaction" reads skip
// the database. Entries expire after a TTL and the least recently used
// entry is evicted at capacity. Inserts for a transaction drop its
// entry, so a stale latest record is never served past the TTL.
type LatestCache struct {
	mu           sync.RWMutex
	capacity     int
	ttl          time.Duration
	items        map[string]*list.Element
	evictionList *list.List
}

// NewLatestCache creates a cache bounded to capacity entries.
func NewLatestCache(capacity int, ttl time.Duration) *LatestCache {
	return &LatestCache{
		capacity:     capacity,
		ttl:          ttl,
		items:        make(map[string]*list.Element, capacity),
		evictionList: list.New(),
	}
}

// Get returns the cached latest record for a transaction ID.
func (c *LatestCache) Get(transactionID string) (*models.CreditValidationAudit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, found := c.items[transactionID]
	if !found {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)

	if time.Now().After(entry.expiresAt) {
		c.removeElement(elem)
		return nil, false
	}

	c.evictionList.MoveToFront(elem)
	return entry.record, true
}

// Set stores the latest record for a transaction ID.
func (c *LatestCache) Set(transactionID string, record *models.CreditValidationAudit) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Now().Add(c.ttl)

	if elem, found := c.items[transactionID]; found {
		c.evictionList.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.record = record
		entry.expiresAt = expiresAt
		return
	}

	elem := c.evictionList.PushFront(&cacheEntry{
		key:       transactionID,
		record:    record,
		expiresAt: expiresAt,
	})
	c.items[transactionID] = elem

	if c.evictionList.Len() > c.capacity {
		c.removeOldest()
	}
}

// Delete drops the entry for a transaction ID. Called on every insert
// for that transaction.
func (c *LatestCache) Delete(transactionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, found := c.items[transactionID]; found {
		c.removeElement(elem)
	}
}

// Clear removes all entries.
func (c *LatestCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element, c.capacity)
	c.evictionList.Init()
}

// Len returns the current number of entries.
func (c *LatestCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.evictionList.Len()
}

func (c *LatestCache) removeOldest() {
	if elem := c.evictionList.Back(); elem != nil {
		c.removeElement(elem)
	}
}

func (c *LatestCache) removeElement(elem *list.Element) {
	c.evictionList.Remove(elem)
	entry := elem.Value.(*cacheEntry)
	delete(c.items, entry.key)
}

// CleanupExpired removes all expired entries and reports how many it
// dropped. A background loop calls it periodically so expired records
// do not sit around until their next lookup.
func (c *LatestCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0

	var next *list.Element
	for elem := c.evictionList.Back(); elem != nil; elem = next {
		next = elem.Prev()
		entry := elem.Value.(*cacheEntry)

		if now.After(entry.expiresAt) {
			c.removeElement(elem)
			removed++
		}
	}

	return removed
}

// CacheStats describes cache occupancy for the stats endpoint.
type CacheStats struct {
	Capacity int           `json:"capacity"`
	Size     int           `json:"size"`
	TTL      time.Duration `json:"ttl"`
}

// GetStats returns current occupancy.
func (c *LatestCache) GetStats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return CacheStats{
		Capacity: c.capacity,
		Size:     c.evictionList.Len(),
		TTL:      c.ttl,
	}
}
