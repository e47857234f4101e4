package domain

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

const (
	// ParamPrefix 是参与签名的网关参数前缀。
	ParamPrefix = "onpay_"
	// SignatureParam 是载荷中携带签名的字段，自身不参与签名。
	SignatureParam = "onpay_hmac_sha1"
)

// CalculateSignature 对网关参数计算规范化的 HMAC-SHA1 摘要。
// 规范化规则必须与网关侧完全一致：只取 onpay_ 前缀参数（签名字段
// 除外），按键名字典序排序，拼成 key=urlEncode(value) 的查询串，
// 整串转小写后再做摘要。
func CalculateSignature(params map[string]string, secret []byte) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		if strings.HasPrefix(key, ParamPrefix) && key != SignatureParam {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+encodeComponent(params[key]))
	}
	canonical := strings.ToLower(strings.Join(pairs, "&"))

	mac := hmac.New(sha1.New, secret)
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature 校验载荷签名。结构异常（缺少签名字段等）一律按
// 校验失败处理，绝不返回错误。底层使用常数时间比较。
func VerifySignature(params map[string]string, secret []byte) bool {
	provided, ok := params[SignatureParam]
	if !ok || provided == "" {
		return false
	}
	expected := CalculateSignature(params, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(provided)))
}

// encodeComponent 按网关的 encodeURIComponent 语义编码：
// 空格编码为 %20 而不是 +。
func encodeComponent(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}
