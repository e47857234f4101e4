package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paysync/internal/service/payment/domain"
)

func TestPreparePaymentCreatesProvisionalAndSignsParams(t *testing.T) {
	svc, deps := newTestService(Config{FrontendURL: "https://shop.example", BackendURL: "https://api.example"})
	ctx := context.Background()

	resp, err := svc.PreparePayment(ctx, &PreparePaymentRequest{
		OrderNumber:       "order-17",
		TotalWithShipping: 100.00,
		UserID:            "user-1",
		Items:             []domain.OrderItem{{ProductID: "p1", Quantity: 1, Price: 100.00}},
	})
	require.NoError(t, err)

	params := resp.Params
	assert.Equal(t, "gw-test", params["onpay_gatewayid"])
	assert.Equal(t, "ORDER-17", params["onpay_reference"])
	assert.Equal(t, "10000", params["onpay_amount"])
	assert.Equal(t, "208", params["onpay_currency"])
	assert.Equal(t, "https://shop.example/order-confirmation/ORDER-17", params["onpay_accepturl"])
	assert.Equal(t, "https://api.example/api/payment-callback", params["onpay_callbackurl"])
	assert.True(t, domain.VerifySignature(params, testSecret))

	record, err := deps.repo.FindByOrderNumber(ctx, "ORDER-17", domain.KindProvisional)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, record.Status)
	require.NotNil(t, record.ExpiresAt)
}

func TestPreparePaymentRequiresOrderNumber(t *testing.T) {
	svc, _ := newTestService(Config{})
	_, err := svc.PreparePayment(context.Background(), &PreparePaymentRequest{OrderNumber: "  "})
	require.Error(t, err)
}

// 回调确认一笔预下单：金额从最小单位换算成主单位，货币编码
// 归一化，预下单记录在同一笔写入里被消费掉。
func TestApplyCallbackFinalizesProvisional(t *testing.T) {
	svc, deps := newTestService(Config{})
	ctx := context.Background()

	_, err := svc.PreparePayment(ctx, &PreparePaymentRequest{OrderNumber: "order-17", TotalWithShipping: 100.00})
	require.NoError(t, err)

	record, err := svc.ApplyCallback(ctx, signedCallback("ORDER-17", 10000, "0", "", "tx-1"))
	require.NoError(t, err)

	assert.Equal(t, domain.LifecycleFinalized, record.Lifecycle)
	assert.Equal(t, domain.StatusAuthorized, record.Status)
	assert.InDelta(t, 100.00, record.TotalAmount, 1e-9)
	assert.Equal(t, "DKK", record.Currency)
	assert.Equal(t, "tx-1", record.GatewayDetails.TransactionID)

	// 预下单已被消费，orderNumber 下只剩一条记录
	count, err := deps.repo.CountByOrderNumber(ctx, "ORDER-17")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	_, err = deps.repo.FindByOrderNumber(ctx, "ORDER-17", domain.KindProvisional)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	assert.Equal(t, 0, svc.pending.Len())
}

func TestApplyCallbackRejectsInvalidSignature(t *testing.T) {
	svc, deps := newTestService(Config{})
	ctx := context.Background()

	params := signedCallback("ORDER-17", 10000, "0", "", "tx-1")
	params["onpay_amount"] = "99999"

	_, err := svc.ApplyCallback(ctx, params)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)

	// fail closed：存储不产生任何变更
	count, err := deps.repo.CountByOrderNumber(ctx, "ORDER-17")
	require.NoError(t, err)
	assert.Zero(t, count)
}

// 回调先于预下单到达：直接落一条 Finalized 记录，没有购物车快照。
func TestApplyCallbackWithoutProvisionalCreatesFinalized(t *testing.T) {
	svc, deps := newTestService(Config{})
	ctx := context.Background()

	record, err := svc.ApplyCallback(ctx, signedCallback("ORDER-42", 2500, "0", "", "tx-9"))
	require.NoError(t, err)

	assert.Equal(t, domain.LifecycleFinalized, record.Lifecycle)
	assert.Equal(t, domain.StatusAuthorized, record.Status)
	assert.InDelta(t, 25.00, record.TotalAmount, 1e-9)
	assert.Empty(t, record.Items)

	count, err := deps.repo.CountByOrderNumber(ctx, "ORDER-42")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestApplyCallbackIdempotentReplay(t *testing.T) {
	svc, deps := newTestService(Config{})
	ctx := context.Background()

	params := signedCallback("ORDER-17", 10000, "0", "", "tx-1")
	for i := 0; i < 3; i++ {
		record, err := svc.ApplyCallback(ctx, params)
		require.NoError(t, err, "replay %d", i)
		assert.Equal(t, domain.StatusAuthorized, record.Status)
	}

	count, err := deps.repo.CountByOrderNumber(ctx, "ORDER-17")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

// 乱序事件：Captured 之后收到的 in-flight 状态被丢弃而不是报错，
// 订单状态保持不变。
func TestApplyCallbackDiscardsStatusRegression(t *testing.T) {
	svc, deps := newTestService(Config{})
	ctx := context.Background()

	_, err := svc.ApplyCallback(ctx, signedCallback("ORDER-17", 10000, "", "captured", "tx-1"))
	require.NoError(t, err)

	record, err := svc.ApplyCallback(ctx, signedCallback("ORDER-17", 10000, "", "active", "tx-2"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCaptured, record.Status)

	stored, err := deps.repo.FindByOrderNumber(ctx, "ORDER-17", domain.KindFinalized)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCaptured, stored.Status)
	// 被丢弃的事件连网关详情也不覆盖
	assert.Equal(t, "tx-1", stored.GatewayDetails.TransactionID)
}

// 同一订单的并发回调：锁保证恰好一个处理方胜出，
// 输家拿到 ErrLockContention，存储里只留一条记录。
func TestApplyCallbackConcurrentSingleWinner(t *testing.T) {
	svc, deps := newTestService(Config{})
	ctx := context.Background()

	_, err := svc.PreparePayment(ctx, &PreparePaymentRequest{OrderNumber: "ORDER-17", TotalWithShipping: 100.00})
	require.NoError(t, err)

	params := signedCallback("ORDER-17", 10000, "0", "", "tx-1")
	const workers = 8
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ApplyCallback(ctx, params)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrLockContention)
	}
	assert.GreaterOrEqual(t, succeeded, 1)

	count, err := deps.repo.CountByOrderNumber(ctx, "ORDER-17")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	record, err := deps.repo.FindByOrderNumber(ctx, "ORDER-17", domain.KindAny)
	require.NoError(t, err)
	assert.Equal(t, domain.LifecycleFinalized, record.Lifecycle)
}

func TestGetOrderStatus(t *testing.T) {
	svc, _ := newTestService(Config{})
	ctx := context.Background()

	_, err := svc.GetOrderStatus(ctx, "ORDER-17")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	_, err = svc.PreparePayment(ctx, &PreparePaymentRequest{OrderNumber: "order-17", TotalWithShipping: 100.00})
	require.NoError(t, err)

	resp, err := svc.GetOrderStatus(ctx, "order-17")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, resp.Status)
	assert.Equal(t, domain.LifecycleProvisional, resp.OrderDetails.Lifecycle)

	_, err = svc.ApplyCallback(ctx, signedCallback("ORDER-17", 10000, "0", "", "tx-1"))
	require.NoError(t, err)

	resp, err = svc.GetOrderStatus(ctx, "ORDER-17")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAuthorized, resp.Status)
	assert.Equal(t, domain.LifecycleFinalized, resp.OrderDetails.Lifecycle)
}

func TestVerifyReturnParams(t *testing.T) {
	svc, _ := newTestService(Config{})

	params := signedCallback("ORDER-17", 10000, "0", "", "tx-1")
	details, err := svc.VerifyReturnParams(params)
	require.NoError(t, err)
	assert.Equal(t, "Success", details.Status)
	assert.Equal(t, "DKK", details.Currency)
	assert.Equal(t, "ORDER-17", details.Reference)

	declined := signedCallback("ORDER-17", 10000, "51", "", "tx-1")
	details, err = svc.VerifyReturnParams(declined)
	require.NoError(t, err)
	assert.Equal(t, "Failed", details.Status)

	params["onpay_amount"] = "1"
	_, err = svc.VerifyReturnParams(params)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

// failingRepo 只用于重试路径：查找永远未命中，写入永远失败。
type failingRepo struct {
	domain.OrderRepository
	mu      sync.Mutex
	creates int
}

func (r *failingRepo) FindByOrderNumber(ctx context.Context, orderNumber string, kind domain.RecordKind) (*domain.OrderRecord, error) {
	return nil, domain.ErrOrderNotFound
}

func (r *failingRepo) Create(ctx context.Context, record *domain.OrderRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	return errors.New("store unavailable")
}

func TestFinalizeRetriesExhaustedTriggersAlert(t *testing.T) {
	svc, deps := newTestService(Config{FinalizeRetries: 3, RetryBackoff: time.Millisecond})
	repo := &failingRepo{}
	svc.repo = repo

	_, err := svc.ApplyCallback(context.Background(), signedCallback("ORDER-17", 10000, "0", "", "tx-1"))

	require.ErrorIs(t, err, domain.ErrPersistenceConflict)
	assert.Equal(t, 3, repo.creates)
	assert.Equal(t, 1, deps.notifier.count())
}

func TestRetryWriteStopsOnContextCancel(t *testing.T) {
	svc, deps := newTestService(Config{FinalizeRetries: 5, RetryBackoff: time.Hour})
	svc.repo = &failingRepo{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.ApplyCallback(ctx, signedCallback("ORDER-17", 10000, "0", "", "tx-1"))
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop did not honor context cancellation")
	}
	assert.Zero(t, deps.notifier.count())
}
