package notify

import (
	"sync"

	"pawcare/internal/model"
)

// Cache holds the latest normalized snapshot of one subscription. Every push
// replaces it wholesale; nothing is patched in place.
type Cache struct {
	mu      sync.RWMutex
	records []model.Notification
}

func (c *Cache) Replace(records []model.Notification) {
	c.mu.Lock()
	c.records = records
	c.mu.Unlock()
}

// Records returns a copy of the cached snapshot.
func (c *Cache) Records() []model.Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Notification, len(c.records))
	copy(out, c.records)
	return out
}

func (c *Cache) UnreadCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return UnreadCount(c.records)
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}
