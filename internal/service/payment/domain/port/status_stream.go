package port

import (
	"context"
	"time"

	"paysync/internal/service/payment/domain"
)

// StatusChange 是一次订单状态变更的通知载荷。
type StatusChange struct {
	OrderNumber string           `json:"orderNumber"`
	Lifecycle   domain.Lifecycle `json:"lifecycle"`
	Status      domain.Status    `json:"status"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// StatusPublisher 把状态变更推给订阅方（运维侧 WebSocket 流）。
// 与告警一样是旁路通知，失败不影响对账主流程。
type StatusPublisher interface {
	PublishStatusChange(ctx context.Context, change StatusChange)
}
