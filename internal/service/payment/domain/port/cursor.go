package port

import "context"

// CursorStore 持久化事件流轮询游标。
// 没有可用存储时允许退化为进程内实现：重启后从网关默认窗口重拉，
// 幂等更新保证重复处理无害。
type CursorStore interface {
	// Load 返回当前游标，从未写入过时返回空串。
	Load(ctx context.Context) (string, error)
	// Store 在整批事件处理完成后写入新游标。
	Store(ctx context.Context, cursor string) error
}
