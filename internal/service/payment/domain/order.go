package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderItem 是下单时的商品快照。
type OrderItem struct {
	Key         string  `json:"key"`
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

// Address 同时用于收货地址与账单地址快照。
type Address struct {
	FullName   string `json:"fullName"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Email      string `json:"email"`
	Country    string `json:"country"`
}

// GatewayDetails 是网关最近一次上报的交易详情。
// 每次更新都整体覆盖，绝不按字段合并，避免留下新旧事件混合的脏数据。
type GatewayDetails struct {
	TransactionID string `json:"transactionId"`
	Number        string `json:"number"`
	Method        string `json:"method"`
	RawStatus     string `json:"rawStatus"`
	ErrorCode     string `json:"errorCode"`
	Amount        int64  `json:"amount"`   // 网关上报的最小货币单位金额
	Currency      string `json:"currency"` // 网关上报的原始货币代码（数字编码）
}

// OrderRecord 是订单聚合的根实体，orderNumber 是贯穿
// Provisional 和 Finalized 两个生命周期阶段的唯一关联键。
type OrderRecord struct {
	ID             string
	OrderNumber    string
	Lifecycle      Lifecycle
	Status         Status
	TotalAmount    float64 // 主货币单位金额
	Currency       string  // ISO 货币代码
	UserID         string
	Items          []OrderItem
	ShippingInfo   Address
	BillingInfo    Address
	SameAsShipping bool
	GatewayDetails GatewayDetails
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ExpiresAt      *time.Time // 仅 Provisional 阶段存在
}

// NewProvisionalOrder 创建一个待支付的预下单记录。
// orderNumber 会被统一转成大写，保证与回调里的 reference 一致。
func NewProvisionalOrder(orderNumber, userID string, totalAmount float64, items []OrderItem, shipping, billing Address, sameAsShipping bool, expiry time.Duration, now time.Time) *OrderRecord {
	expiresAt := now.Add(expiry)
	normalized := make([]OrderItem, len(items))
	copy(normalized, items)
	for i := range normalized {
		if normalized[i].Key == "" {
			normalized[i].Key = uuid.NewString()
		}
	}
	return &OrderRecord{
		ID:             uuid.NewString(),
		OrderNumber:    strings.ToUpper(orderNumber),
		Lifecycle:      LifecycleProvisional,
		Status:         StatusPending,
		TotalAmount:    totalAmount,
		Currency:       "DKK",
		UserID:         userID,
		Items:          normalized,
		ShippingInfo:   shipping,
		BillingInfo:    billing,
		SameAsShipping: sameAsShipping,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      &expiresAt,
	}
}

// NewFinalizedOrder 直接从网关事件创建已确认订单。
// 这是回调先于预下单到达时的兜底路径，没有购物车快照可复制。
func NewFinalizedOrder(orderNumber string, status Status, details GatewayDetails, now time.Time) *OrderRecord {
	return &OrderRecord{
		ID:             uuid.NewString(),
		OrderNumber:    strings.ToUpper(orderNumber),
		Lifecycle:      LifecycleFinalized,
		Status:         status,
		TotalAmount:    MinorToMajor(details.Amount),
		Currency:       NormalizeCurrency(details.Currency),
		GatewayDetails: details,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// FinalizeProvisional 把预下单记录升级为已确认订单，
// 购物车、收货与账单快照原样带入新记录。返回的是一个新实体，
// 旧的 Provisional 记录由仓储在同一个事务里删除。
func FinalizeProvisional(provisional *OrderRecord, status Status, details GatewayDetails, now time.Time) *OrderRecord {
	return &OrderRecord{
		ID:             uuid.NewString(),
		OrderNumber:    provisional.OrderNumber,
		Lifecycle:      LifecycleFinalized,
		Status:         status,
		TotalAmount:    MinorToMajor(details.Amount),
		Currency:       NormalizeCurrency(details.Currency),
		UserID:         provisional.UserID,
		Items:          provisional.Items,
		ShippingInfo:   provisional.ShippingInfo,
		BillingInfo:    provisional.BillingInfo,
		SameAsShipping: provisional.SameAsShipping,
		GatewayDetails: details,
		CreatedAt:      provisional.CreatedAt,
		UpdatedAt:      now,
	}
}

// ApplyStatus 在已确认订单上就地应用新状态。
// 不符合 DAG 的回退（例如 Captured 之后又收到 Pending）返回
// ErrStatusRegression，调用方记录日志后丢弃该事件即可。
func (o *OrderRecord) ApplyStatus(status Status, details GatewayDetails, now time.Time) error {
	if !o.Status.CanTransition(status) {
		return ErrStatusRegression
	}
	o.Status = status
	o.GatewayDetails = details
	o.UpdatedAt = now
	return nil
}

// Expired 判断预下单记录是否已过期。
func (o *OrderRecord) Expired(now time.Time) bool {
	return o.Lifecycle == LifecycleProvisional && o.ExpiresAt != nil && now.After(*o.ExpiresAt)
}

// MinorToMajor 把最小货币单位金额转成主单位金额。
func MinorToMajor(minor int64) float64 {
	return float64(minor) / 100
}

// MajorToMinor 把主单位金额转成最小货币单位金额，四舍五入到分。
func MajorToMinor(major float64) int64 {
	return int64(major*100 + 0.5)
}
