package domain

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// 领域错误分类。调用方用 errors.Is 判别，拒绝依赖错误文案。
var (
	// ErrInvalidSignature 签名校验失败，请求被整体拒绝，不产生任何变更。
	ErrInvalidSignature = errors.New("invalid gateway signature")
	// ErrOrderNotFound 订单不存在。
	ErrOrderNotFound = errors.New("order not found")
	// ErrLockContention 同一订单正在被其他调用方处理。
	ErrLockContention = errors.New("order is being processed")
	// ErrUpstreamUnavailable 网关请求失败，等下一个调度周期重试。
	ErrUpstreamUnavailable = errors.New("payment gateway unavailable")
	// ErrPersistenceConflict 存储事务写入失败。
	ErrPersistenceConflict = errors.New("order store write conflict")
	// ErrStatusRegression 事件试图把状态沿 DAG 回退，应记录并丢弃。
	ErrStatusRegression = errors.New("status transition would regress")
)

// RecordKind 限定按订单号查找时命中的生命周期阶段。
type RecordKind string

const (
	KindProvisional RecordKind = "provisional"
	KindFinalized   RecordKind = "finalized"
	KindAny         RecordKind = "any"
)

// OrderRepository 定义了订单聚合的持久化接口。
// 位于领域层，由基础设施层实现（GORM 与内存两套）。
type OrderRepository interface {
	// FindByOrderNumber 按订单号查找记录，kind 为 Any 时
	// Finalized 优先于 Provisional。未命中返回 ErrOrderNotFound。
	FindByOrderNumber(ctx context.Context, orderNumber string, kind RecordKind) (*OrderRecord, error)

	// Create 插入一条新记录。
	Create(ctx context.Context, record *OrderRecord) error

	// CreateFinalizedAndDeleteProvisional 在同一个事务里创建
	// Finalized 记录并删除对应的 Provisional 记录。Provisional
	// 已被并发消费时返回 ErrPersistenceConflict。
	CreateFinalizedAndDeleteProvisional(ctx context.Context, record *OrderRecord, provisionalID string) (*OrderRecord, error)

	// PatchStatus 就地更新状态、网关详情与更新时间。
	PatchStatus(ctx context.Context, id string, status Status, details GatewayDetails, updatedAt time.Time) (*OrderRecord, error)

	// ListPendingProvisional 列出所有预下单记录，供对账扫描使用。
	ListPendingProvisional(ctx context.Context) ([]*OrderRecord, error)

	// DeleteExpired 删除 expiresAt 早于 before 的预下单记录，返回删除数量。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)

	// CountByOrderNumber 统计订单号下的记录数，用于一致性校验。
	CountByOrderNumber(ctx context.Context, orderNumber string) (int64, error)
}
