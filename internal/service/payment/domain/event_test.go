package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCallbackEvent(t *testing.T) {
	evt, err := ParseCallbackEvent(map[string]string{
		"onpay_reference": "order-17",
		"onpay_uuid":      "tx-1",
		"onpay_number":    "1234",
		"onpay_method":    "card",
		"onpay_status":    "captured",
		"onpay_errorcode": "0",
		"onpay_amount":    "10000",
		"onpay_currency":  "208",
	})

	require.NoError(t, err)
	assert.Equal(t, "ORDER-17", evt.Reference)
	assert.Equal(t, "tx-1", evt.TransactionID)
	assert.Equal(t, int64(10000), evt.Amount)
	assert.Equal(t, "208", evt.CurrencyCode)
	assert.Equal(t, "0", evt.ErrorCode)
}

func TestParseCallbackEventMissingReference(t *testing.T) {
	_, err := ParseCallbackEvent(map[string]string{"onpay_uuid": "tx-1"})
	require.Error(t, err)

	_, err = ParseCallbackEvent(map[string]string{"onpay_reference": "  "})
	require.Error(t, err)
}

func TestParseCallbackEventBadAmount(t *testing.T) {
	_, err := ParseCallbackEvent(map[string]string{
		"onpay_reference": "order-17",
		"onpay_amount":    "12,50",
	})
	require.Error(t, err)
}

func TestTransactionDetailActiveAndUncharged(t *testing.T) {
	assert.True(t, TransactionDetail{Status: "active", Charged: 0}.ActiveAndUncharged())
	assert.False(t, TransactionDetail{Status: "active", Charged: 10000}.ActiveAndUncharged())
	assert.False(t, TransactionDetail{Status: "captured", Charged: 0}.ActiveAndUncharged())
}

func TestTransactionDetailDetailsHasNoErrorCode(t *testing.T) {
	details := TransactionDetail{
		UUID:         "tx-1",
		OrderNumber:  "ORDER-17",
		Status:       "captured",
		Amount:       10000,
		CurrencyCode: "208",
		Method:       "mobilepay",
	}.Details()

	assert.Equal(t, "tx-1", details.TransactionID)
	assert.Equal(t, "captured", details.RawStatus)
	assert.Empty(t, details.ErrorCode)
}
