package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("gateway-shared-secret")

func callbackParams() map[string]string {
	return map[string]string{
		"onpay_reference": "ORDER-17",
		"onpay_amount":    "10000",
		"onpay_currency":  "208",
		"onpay_errorcode": "0",
		"onpay_uuid":      "9d5beb2a-16ab-4f0e-a591-0a8e8f48d8a2",
	}
}

func TestVerifySignatureRoundTrip(t *testing.T) {
	params := callbackParams()
	params[SignatureParam] = CalculateSignature(params, testSecret)

	assert.True(t, VerifySignature(params, testSecret))
}

func TestVerifySignatureRejectsTampering(t *testing.T) {
	params := callbackParams()
	params[SignatureParam] = CalculateSignature(params, testSecret)

	// 翻转签名的第一个字符
	sig := []byte(params[SignatureParam])
	if sig[0] == 'a' {
		sig[0] = 'b'
	} else {
		sig[0] = 'a'
	}
	params[SignatureParam] = string(sig)

	assert.False(t, VerifySignature(params, testSecret))
}

func TestVerifySignatureRejectsTamperedValue(t *testing.T) {
	params := callbackParams()
	params[SignatureParam] = CalculateSignature(params, testSecret)
	params["onpay_amount"] = "10001"

	assert.False(t, VerifySignature(params, testSecret))
}

func TestVerifySignatureMissingSignature(t *testing.T) {
	assert.False(t, VerifySignature(callbackParams(), testSecret))
	assert.False(t, VerifySignature(map[string]string{}, testSecret))
	assert.False(t, VerifySignature(nil, testSecret))
}

func TestVerifySignatureWrongSecret(t *testing.T) {
	params := callbackParams()
	params[SignatureParam] = CalculateSignature(params, testSecret)

	assert.False(t, VerifySignature(params, []byte("another-secret")))
}

func TestCalculateSignatureIgnoresForeignParams(t *testing.T) {
	params := callbackParams()
	base := CalculateSignature(params, testSecret)

	// 非 onpay_ 前缀的参数和签名字段本身都不参与摘要
	params["utm_source"] = "newsletter"
	params[SignatureParam] = "whatever"
	require.Equal(t, base, CalculateSignature(params, testSecret))
}

func TestCalculateSignatureDeterministicOrdering(t *testing.T) {
	a := CalculateSignature(map[string]string{
		"onpay_b": "2",
		"onpay_a": "1",
	}, testSecret)
	b := CalculateSignature(map[string]string{
		"onpay_a": "1",
		"onpay_b": "2",
	}, testSecret)

	assert.Equal(t, a, b)
}

func TestVerifySignatureAcceptsUppercaseHex(t *testing.T) {
	params := callbackParams()
	sig := CalculateSignature(params, testSecret)
	params[SignatureParam] = string([]byte(sig)) // baseline

	require.True(t, VerifySignature(params, testSecret))

	// 网关偶尔回传大写 hex，比较前统一小写
	upper := make([]byte, len(sig))
	for i := 0; i < len(sig); i++ {
		c := sig[i]
		if c >= 'a' && c <= 'f' {
			c = c - 'a' + 'A'
		}
		upper[i] = c
	}
	params[SignatureParam] = string(upper)
	assert.True(t, VerifySignature(params, testSecret))
}
