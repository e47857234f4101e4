package domain

// Lifecycle 区分预下单记录和已确认订单。
// Provisional 记录在支付发起时创建，带过期时间；Finalized 记录承载网关确认后的支付状态。
type Lifecycle string

const (
	LifecycleProvisional Lifecycle = "provisional"
	LifecycleFinalized   Lifecycle = "finalized"
)

// Status 定义了订单的本地支付状态词汇表。
type Status string

const (
	StatusPending    Status = "pending"
	StatusAuthorized Status = "authorized"
	StatusCaptured   Status = "captured"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
)

// statusTransitions 是状态迁移 DAG：Pending 为源点，
// Captured/Cancelled/Failed 为汇点，Authorized 是唯一的中间态。
var statusTransitions = map[Status]map[Status]struct{}{
	StatusPending: {
		StatusAuthorized: {},
		StatusCaptured:   {},
		StatusCancelled:  {},
		StatusFailed:     {},
	},
	StatusAuthorized: {
		StatusCaptured:  {},
		StatusCancelled: {},
		StatusFailed:    {},
	},
	StatusCaptured:  {},
	StatusCancelled: {},
	StatusFailed:    {},
}

// CanTransition 判断从当前状态迁移到 to 是否符合 DAG。
// 同状态重放视为合法（幂等补丁会刷新网关详情）。
func (s Status) CanTransition(to Status) bool {
	if s == to {
		return true
	}
	next, ok := statusTransitions[s]
	if !ok {
		// 未知状态按源点处理，允许首次写入任何合法状态
		return true
	}
	_, ok = next[to]
	return ok
}

// IsFinal 判断状态是否为汇点。
func (s Status) IsFinal() bool {
	return s == StatusCaptured || s == StatusCancelled || s == StatusFailed
}
