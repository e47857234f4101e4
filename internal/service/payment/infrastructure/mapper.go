package infrastructure

import (
	"encoding/json"

	"paysync/internal/service/payment/domain"
)

// toModel 将领域实体转换为数据库模型。
func toModel(record *domain.OrderRecord) (*OrderModel, error) {
	items, err := json.Marshal(record.Items)
	if err != nil {
		return nil, err
	}
	shipping, err := json.Marshal(record.ShippingInfo)
	if err != nil {
		return nil, err
	}
	billing, err := json.Marshal(record.BillingInfo)
	if err != nil {
		return nil, err
	}

	return &OrderModel{
		ID:          record.ID,
		OrderNumber: record.OrderNumber,
		Lifecycle:   string(record.Lifecycle),
		Status:      string(record.Status),

		TotalAmount: record.TotalAmount,
		Currency:    record.Currency,
		UserID:      record.UserID,

		ItemsJSON:      string(items),
		ShippingJSON:   string(shipping),
		BillingJSON:    string(billing),
		SameAsShipping: record.SameAsShipping,

		GatewayTransactionID: record.GatewayDetails.TransactionID,
		GatewayNumber:        record.GatewayDetails.Number,
		GatewayMethod:        record.GatewayDetails.Method,
		GatewayRawStatus:     record.GatewayDetails.RawStatus,
		GatewayErrorCode:     record.GatewayDetails.ErrorCode,
		GatewayAmount:        record.GatewayDetails.Amount,
		GatewayCurrency:      record.GatewayDetails.Currency,

		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// toDomain 将数据库模型还原为领域实体。
func toDomain(model *OrderModel) (*domain.OrderRecord, error) {
	record := &domain.OrderRecord{
		ID:          model.ID,
		OrderNumber: model.OrderNumber,
		Lifecycle:   domain.Lifecycle(model.Lifecycle),
		Status:      domain.Status(model.Status),

		TotalAmount:    model.TotalAmount,
		Currency:       model.Currency,
		UserID:         model.UserID,
		SameAsShipping: model.SameAsShipping,

		GatewayDetails: domain.GatewayDetails{
			TransactionID: model.GatewayTransactionID,
			Number:        model.GatewayNumber,
			Method:        model.GatewayMethod,
			RawStatus:     model.GatewayRawStatus,
			ErrorCode:     model.GatewayErrorCode,
			Amount:        model.GatewayAmount,
			Currency:      model.GatewayCurrency,
		},

		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
		ExpiresAt: model.ExpiresAt,
	}

	if model.ItemsJSON != "" {
		if err := json.Unmarshal([]byte(model.ItemsJSON), &record.Items); err != nil {
			return nil, err
		}
	}
	if model.ShippingJSON != "" {
		if err := json.Unmarshal([]byte(model.ShippingJSON), &record.ShippingInfo); err != nil {
			return nil, err
		}
	}
	if model.BillingJSON != "" {
		if err := json.Unmarshal([]byte(model.BillingJSON), &record.BillingInfo); err != nil {
			return nil, err
		}
	}
	return record, nil
}
