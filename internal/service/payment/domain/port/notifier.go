package port

import "context"

// AlertNotifier 是对账失败时的告警侧信道。
// 发送是 fire-and-forget 的：实现自己消化错误，核心流程不等待也不感知发送结果。
type AlertNotifier interface {
	Notify(ctx context.Context, message string, fields map[string]string)
}
