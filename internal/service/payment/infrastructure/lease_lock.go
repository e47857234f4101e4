package infrastructure

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"paysync/internal/service/payment/domain"
	"paysync/internal/service/payment/domain/port"
)

// LeaseLock 是 port.OrderLocker 的进程内实现：按订单号粒度的
// 非重入互斥，带租约超时。持有者崩溃或忘记释放时，租约到期后
// 其他调用方可以重新获取，避免永久饿死。
// 释放采用 token 比对，过期后被他人重新获取的锁不会被旧持有者误释放。
type LeaseLock struct {
	mu    sync.Mutex
	lease time.Duration
	held  map[string]leaseEntry
	now   func() time.Time
}

type leaseEntry struct {
	token     string
	expiresAt time.Time
}

func NewLeaseLock(lease time.Duration) *LeaseLock {
	if lease <= 0 {
		lease = 30 * time.Second
	}
	return &LeaseLock{
		lease: lease,
		held:  make(map[string]leaseEntry),
		now:   time.Now,
	}
}

// TryAcquire 快速失败地尝试获取订单锁。
// 锁被未过期的租约持有时返回 domain.ErrLockContention。
func (l *LeaseLock) TryAcquire(ctx context.Context, orderNumber string) (port.Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.held[orderNumber]; ok && l.now().Before(entry.expiresAt) {
		return nil, domain.ErrLockContention
	}

	token := uuid.NewString()
	l.held[orderNumber] = leaseEntry{
		token:     token,
		expiresAt: l.now().Add(l.lease),
	}
	return &memoryLease{lock: l, key: orderNumber, token: token}, nil
}

type memoryLease struct {
	lock  *LeaseLock
	key   string
	token string
}

// Release 仅在锁仍由本租约持有时删除，幂等。
func (m *memoryLease) Release() {
	m.lock.mu.Lock()
	defer m.lock.mu.Unlock()

	if entry, ok := m.lock.held[m.key]; ok && entry.token == m.token {
		delete(m.lock.held, m.key)
	}
}
