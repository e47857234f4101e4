package domain

// CurrencyCodeDKK 是网关默认使用的数字货币代码。
const CurrencyCodeDKK = "208"

// currencyCodes 是网关数字货币代码到 ISO 字母代码的固定映射。
var currencyCodes = map[string]string{
	"208": "DKK",
	"978": "EUR",
	"840": "USD",
	"826": "GBP",
	"752": "SEK",
	"578": "NOK",
}

// NormalizeCurrency 把网关上报的数字货币代码翻译成 ISO 字母代码。
// 未知代码原样透传，不做猜测。
func NormalizeCurrency(code string) string {
	if iso, ok := currencyCodes[code]; ok {
		return iso
	}
	return code
}
