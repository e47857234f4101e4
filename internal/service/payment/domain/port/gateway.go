package port

import (
	"context"

	"paysync/internal/service/payment/domain"
)

// GatewayClient 定义了远端支付网关的查询接口。
// 它位于领域层，由基础设施层的 HTTP 适配器实现。
type GatewayClient interface {
	// FetchTransaction 按交易 ID 拉取完整详情。
	FetchTransaction(ctx context.Context, transactionID string) (*domain.TransactionDetail, error)

	// SearchTransactions 按订单号检索关联交易。
	SearchTransactions(ctx context.Context, orderNumber string) ([]*domain.TransactionDetail, error)

	// PollEvents 拉取 cursor 之后的一批交易事件，返回事件与新 cursor。
	// cursor 为空表示从网关默认窗口开始。
	PollEvents(ctx context.Context, cursor string) ([]domain.TransactionEvent, string, error)
}
