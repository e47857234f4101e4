package port

import "context"

// Lease 代表一次成功的锁占用。Release 幂等，且只会释放自己持有的租约。
type Lease interface {
	Release()
}

// OrderLocker 提供以 orderNumber 为粒度的互斥。
// 语义要求：不可重入、快速失败（竞争时返回 domain.ErrLockContention
// 而不是阻塞等待）、租约到期自动失效，防止持有者崩溃后永久饿死。
type OrderLocker interface {
	TryAcquire(ctx context.Context, orderNumber string) (Lease, error)
}
