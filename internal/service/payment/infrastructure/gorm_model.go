package infrastructure

import (
	"time"
)

// OrderModel 对应数据库中的 payment_order 表。
// 商品与地址快照序列化为 JSON 文本列，网关详情平铺成独立列便于排查。
type OrderModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	OrderNumber string `gorm:"size:64;uniqueIndex:uniq_order_lifecycle"`
	Lifecycle   string `gorm:"size:16;uniqueIndex:uniq_order_lifecycle;index:idx_lifecycle_expires"`
	Status      string `gorm:"size:16"`

	TotalAmount float64 `gorm:"type:decimal(12,2)"`
	Currency    string  `gorm:"size:8"`
	UserID      string  `gorm:"size:64;index"`

	ItemsJSON      string `gorm:"column:items;type:text"`
	ShippingJSON   string `gorm:"column:shipping_info;type:text"`
	BillingJSON    string `gorm:"column:billing_info;type:text"`
	SameAsShipping bool

	GatewayTransactionID string `gorm:"size:64;index"`
	GatewayNumber        string `gorm:"size:32"`
	GatewayMethod        string `gorm:"size:32"`
	GatewayRawStatus     string `gorm:"size:32"`
	GatewayErrorCode     string `gorm:"size:16"`
	GatewayAmount        int64
	GatewayCurrency      string `gorm:"size:8"`

	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt *time.Time `gorm:"index:idx_lifecycle_expires"`
}

// TableName 指定 GORM 应该使用的表名。
func (OrderModel) TableName() string {
	return "payment_order"
}
