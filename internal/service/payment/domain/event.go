package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// CallbackEvent 是网关推送回调解析后的载荷。
type CallbackEvent struct {
	Reference     string // onpay_reference，即 orderNumber
	TransactionID string // onpay_uuid
	Number        string // onpay_number
	Method        string // onpay_method
	RawStatus     string // onpay_status，部分回调形态下为空
	ErrorCode     string // onpay_errorcode
	Amount        int64  // onpay_amount，最小货币单位
	CurrencyCode  string // onpay_currency，数字编码
}

// ParseCallbackEvent 从扁平的网关参数里解析回调事件。
// 只做结构校验，签名校验由调用方在此之前完成。
func ParseCallbackEvent(params map[string]string) (CallbackEvent, error) {
	reference := strings.TrimSpace(params["onpay_reference"])
	if reference == "" {
		return CallbackEvent{}, errors.New("callback missing onpay_reference")
	}

	evt := CallbackEvent{
		Reference:     strings.ToUpper(reference),
		TransactionID: params["onpay_uuid"],
		Number:        params["onpay_number"],
		Method:        params["onpay_method"],
		RawStatus:     params["onpay_status"],
		ErrorCode:     params["onpay_errorcode"],
		CurrencyCode:  params["onpay_currency"],
	}

	if raw := params["onpay_amount"]; raw != "" {
		amount, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return CallbackEvent{}, errors.Wrapf(err, "invalid onpay_amount %q", raw)
		}
		evt.Amount = amount
	}
	return evt, nil
}

// Details 把回调事件转换成整体覆盖用的网关详情。
func (e CallbackEvent) Details() GatewayDetails {
	return GatewayDetails{
		TransactionID: e.TransactionID,
		Number:        e.Number,
		Method:        e.Method,
		RawStatus:     e.RawStatus,
		ErrorCode:     e.ErrorCode,
		Amount:        e.Amount,
		Currency:      e.CurrencyCode,
	}
}

// TransactionEvent 是事件流轮询返回的单条事件，只携带交易 ID，
// 详情需要再按 ID 拉取。
type TransactionEvent struct {
	TransactionID string `json:"transaction"`
}

// TransactionDetail 是按 ID 拉取到的完整交易详情。
type TransactionDetail struct {
	UUID         string    `json:"uuid"`
	OrderNumber  string    `json:"order_id"`
	Status       string    `json:"status"`
	Amount       int64     `json:"amount"`
	Charged      int64     `json:"charged"`
	CurrencyCode string    `json:"currency_code"`
	Method       string    `json:"wallet"`
	CreatedAt    time.Time `json:"-"`
}

// Details 把交易详情转换成整体覆盖用的网关详情。
// 轮询路径没有错误码，ErrorCode 留空。
func (t TransactionDetail) Details() GatewayDetails {
	return GatewayDetails{
		TransactionID: t.UUID,
		Method:        t.Method,
		RawStatus:     t.Status,
		Amount:        t.Amount,
		Currency:      t.CurrencyCode,
	}
}

// ActiveAndUncharged 判断交易是否处于活跃且未扣款状态，
// 对账扫描用它来识别可以确认的预下单。
func (t TransactionDetail) ActiveAndUncharged() bool {
	return t.Status == "active" && t.Charged == 0
}
