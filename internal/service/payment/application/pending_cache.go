package application

import (
	"sync"
	"time"

	"paysync/internal/service/payment/domain"
)

// PendingOrderCache 缓存刚创建的预下单快照，带显式 TTL。
// 它取代了旧实现里靠 setTimeout 清理的模块级 Map：由引擎持有、
// 构造时注入，过期条目在读取时惰性剔除，调度器周期性兜底清理。
type PendingOrderCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]pendingEntry
	now     func() time.Time
}

type pendingEntry struct {
	record    *domain.OrderRecord
	expiresAt time.Time
}

func NewPendingOrderCache(ttl time.Duration) *PendingOrderCache {
	return &PendingOrderCache{
		ttl:     ttl,
		entries: make(map[string]pendingEntry),
		now:     time.Now,
	}
}

// Put 记录一个预下单快照。
func (c *PendingOrderCache) Put(record *domain.OrderRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[record.OrderNumber] = pendingEntry{
		record:    record,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Get 返回未过期的快照；过期条目顺手剔除。
func (c *PendingOrderCache) Get(orderNumber string) (*domain.OrderRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[orderNumber]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, orderNumber)
		return nil, false
	}
	return entry.record, true
}

// Remove 在订单确认后移除快照。
func (c *PendingOrderCache) Remove(orderNumber string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, orderNumber)
}

// Prune 清理所有过期条目，返回清理数量。
func (c *PendingOrderCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len 返回当前条目数。
func (c *PendingOrderCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
