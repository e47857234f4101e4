package application

import "paysync/internal/service/payment/domain"

// PreparePaymentRequest 是发起支付时的应用层 DTO。
type PreparePaymentRequest struct {
	OrderNumber       string             `json:"orderNumber"`
	TotalWithShipping float64            `json:"totalWithShipping"`
	Items             []domain.OrderItem `json:"items"`
	UserID            string             `json:"userId"`
	ShippingInfo      domain.Address     `json:"shippingInfo"`
	BillingInfo       domain.Address     `json:"billingInfo"`
	SameAsShipping    bool               `json:"sameAsShipping"`
}

// PreparePaymentResponse 返回带签名的网关跳转参数，
// 前端用它拼出支付窗口的表单。
type PreparePaymentResponse struct {
	Params map[string]string `json:"params"`
}

// VerifiedPaymentDetails 是 return-URL 参数校验通过后回显的支付详情。
type VerifiedPaymentDetails struct {
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
	ErrorCode string `json:"errorCode"`
}

// OrderStatusResponse 是状态查询的响应：无论命中 Provisional
// 还是 Finalized 记录，都回传当前已知状态与订单详情。
type OrderStatusResponse struct {
	Status       domain.Status       `json:"status"`
	OrderDetails *domain.OrderRecord `json:"orderDetails"`
}
