package domain

// 回调与轮询两条路径的状态映射是两个独立入口：回调载荷带错误码且
// 错误码优先，轮询到的交易没有错误码、只看原始状态。这是网关两种
// 载荷形态的真实差异，不要合并成一个函数。

// MapCallbackStatus 映射回调路径的状态。
// errorCode == "0" 表示网关侧授权成功，优先于任何原始状态。
func MapCallbackStatus(errorCode, gatewayStatus string) Status {
	if errorCode == "0" {
		return StatusAuthorized
	}
	return mapRawStatus(gatewayStatus)
}

// MapTransactionStatus 映射轮询/对账路径的状态，只依据交易原始状态。
func MapTransactionStatus(gatewayStatus string) Status {
	return mapRawStatus(gatewayStatus)
}

func mapRawStatus(gatewayStatus string) Status {
	switch gatewayStatus {
	case "captured":
		return StatusCaptured
	case "declined":
		return StatusCancelled
	case "active":
		// 交易仍在进行中，不是终态
		return StatusPending
	default:
		return StatusFailed
	}
}

// sweepIgnored 列出对账扫描直接跳过、不做任何订单变更的交易状态。
var sweepIgnored = map[string]struct{}{
	"aborted":   {},
	"cancelled": {},
	"pre_auth":  {},
}

// SweepIgnoresStatus 判断对账扫描是否应忽略该交易状态。
func SweepIgnoresStatus(gatewayStatus string) bool {
	_, ok := sweepIgnored[gatewayStatus]
	return ok
}
