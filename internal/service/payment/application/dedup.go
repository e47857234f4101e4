package application

import "sync"

// DedupSet 是一个容量有界的进程内去重集合，用于避免对同一笔交易
// 重复拉取网关详情。超出容量时按 FIFO 淘汰最老的条目。
// 它不需要持久化：重启后丢失只会带来幂等的重复处理，不会损坏状态。
type DedupSet struct {
	mu       sync.Mutex
	capacity int
	order    []string
	seen     map[string]struct{}
}

func NewDedupSet(capacity int) *DedupSet {
	if capacity <= 0 {
		capacity = 1
	}
	return &DedupSet{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
	}
}

// Seen 判断 ID 是否已处理过。
func (d *DedupSet) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[id]
	return ok
}

// Add 记录一个已处理的 ID，必要时淘汰最老条目。
func (d *DedupSet) Add(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return
	}
	d.seen[id] = struct{}{}
	d.order = append(d.order, id)
	for len(d.order) > d.capacity {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
}

// Len 返回当前条目数。
func (d *DedupSet) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
