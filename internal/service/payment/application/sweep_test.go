package application

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paysync/internal/service/payment/domain"
)

func TestSweepFinalizesActiveUnchargedTransaction(t *testing.T) {
	svc, deps := newTestService(Config{})
	ctx := context.Background()

	_, err := svc.PreparePayment(ctx, &PreparePaymentRequest{OrderNumber: "ORDER-17", TotalWithShipping: 100.00})
	require.NoError(t, err)

	deps.gateway.search = func(ctx context.Context, orderNumber string) ([]*domain.TransactionDetail, error) {
		return []*domain.TransactionDetail{
			{UUID: "tx-1", OrderNumber: orderNumber, Status: "active", Amount: 10000, Charged: 0, CurrencyCode: "208"},
		}, nil
	}

	report, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Finalized)
	assert.Zero(t, report.Failures)

	record, err := deps.repo.FindByOrderNumber(ctx, "ORDER-17", domain.KindFinalized)
	require.NoError(t, err)
	// active 走轮询映射：确认记录落库，状态仍是 in-flight
	assert.Equal(t, domain.StatusPending, record.Status)
	assert.InDelta(t, 100.00, record.TotalAmount, 1e-9)
}

func TestSweepDeletesExpiredWithoutQueryingGateway(t *testing.T) {
	svc, deps := newTestService(Config{})
	ctx := context.Background()

	// 一个小时前创建、30 分钟过期的预下单
	expired := domain.NewProvisionalOrder("ORDER-OLD", "", 10, nil, domain.Address{}, domain.Address{}, true,
		30*time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, deps.repo.Create(ctx, expired))

	report, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Checked)
	assert.Equal(t, int64(1), report.Deleted)
	assert.Zero(t, deps.gateway.searchCount())

	_, err = deps.repo.FindByOrderNumber(ctx, "ORDER-OLD", domain.KindAny)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

// 单个订单的网关失败被隔离，剩下的订单照常处理。
func TestSweepIsolatesPerOrderFailures(t *testing.T) {
	svc, deps := newTestService(Config{})
	ctx := context.Background()

	_, err := svc.PreparePayment(ctx, &PreparePaymentRequest{OrderNumber: "ORDER-A", TotalWithShipping: 10})
	require.NoError(t, err)
	_, err = svc.PreparePayment(ctx, &PreparePaymentRequest{OrderNumber: "ORDER-B", TotalWithShipping: 20})
	require.NoError(t, err)

	deps.gateway.search = func(ctx context.Context, orderNumber string) ([]*domain.TransactionDetail, error) {
		if orderNumber == "ORDER-A" {
			return nil, errors.New("gateway 502")
		}
		return []*domain.TransactionDetail{
			// 放弃态的交易不参与匹配
			{UUID: "tx-0", OrderNumber: orderNumber, Status: "aborted"},
			{UUID: "tx-1", OrderNumber: orderNumber, Status: "active", Amount: 2000, Charged: 0, CurrencyCode: "208"},
		}, nil
	}

	report, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 1, report.Finalized)
	assert.Equal(t, 1, report.Failures)

	// 失败的订单原样保留，下一轮重试
	_, err = deps.repo.FindByOrderNumber(ctx, "ORDER-A", domain.KindProvisional)
	assert.NoError(t, err)
	record, err := deps.repo.FindByOrderNumber(ctx, "ORDER-B", domain.KindFinalized)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", record.GatewayDetails.TransactionID)
}

func TestSweepSkipsNoMatchAndUnexpiredOrders(t *testing.T) {
	svc, deps := newTestService(Config{})
	ctx := context.Background()

	_, err := svc.PreparePayment(ctx, &PreparePaymentRequest{OrderNumber: "ORDER-17", TotalWithShipping: 100})
	require.NoError(t, err)

	deps.gateway.search = func(ctx context.Context, orderNumber string) ([]*domain.TransactionDetail, error) {
		// 只有已扣款的交易：不满足 active+uncharged 匹配条件
		return []*domain.TransactionDetail{
			{UUID: "tx-1", OrderNumber: orderNumber, Status: "active", Charged: 10000},
		}, nil
	}

	report, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Zero(t, report.Finalized)
	assert.Zero(t, report.Deleted)

	_, err = deps.repo.FindByOrderNumber(ctx, "ORDER-17", domain.KindProvisional)
	assert.NoError(t, err)
}

// 扫描撞上正在处理同一订单的回调：跳过而不是计失败。
func TestSweepSkipsOrderHeldByConcurrentProcessor(t *testing.T) {
	svc, deps := newTestService(Config{})
	ctx := context.Background()

	_, err := svc.PreparePayment(ctx, &PreparePaymentRequest{OrderNumber: "ORDER-17", TotalWithShipping: 100})
	require.NoError(t, err)

	lease, err := deps.locker.TryAcquire(ctx, "ORDER-17")
	require.NoError(t, err)
	defer lease.Release()

	deps.gateway.search = func(ctx context.Context, orderNumber string) ([]*domain.TransactionDetail, error) {
		return []*domain.TransactionDetail{
			{UUID: "tx-1", OrderNumber: orderNumber, Status: "active", Amount: 10000, CurrencyCode: "208"},
		}, nil
	}

	report, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Zero(t, report.Finalized)
	assert.Zero(t, report.Failures)

	_, err = deps.repo.FindByOrderNumber(ctx, "ORDER-17", domain.KindProvisional)
	assert.NoError(t, err)
}
