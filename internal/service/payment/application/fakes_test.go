package application

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"paysync/internal/service/payment/domain"
	"paysync/internal/service/payment/infrastructure"
)

// fakeGateway 用函数字段按用例定制网关行为。
type fakeGateway struct {
	mu          sync.Mutex
	fetchCalls  int
	searchCalls int

	fetch  func(ctx context.Context, transactionID string) (*domain.TransactionDetail, error)
	search func(ctx context.Context, orderNumber string) ([]*domain.TransactionDetail, error)
	poll   func(ctx context.Context, cursor string) ([]domain.TransactionEvent, string, error)
}

func (g *fakeGateway) FetchTransaction(ctx context.Context, transactionID string) (*domain.TransactionDetail, error) {
	g.mu.Lock()
	g.fetchCalls++
	g.mu.Unlock()
	if g.fetch == nil {
		return nil, errors.New("unexpected FetchTransaction call")
	}
	return g.fetch(ctx, transactionID)
}

func (g *fakeGateway) SearchTransactions(ctx context.Context, orderNumber string) ([]*domain.TransactionDetail, error) {
	g.mu.Lock()
	g.searchCalls++
	g.mu.Unlock()
	if g.search == nil {
		return nil, errors.New("unexpected SearchTransactions call")
	}
	return g.search(ctx, orderNumber)
}

func (g *fakeGateway) PollEvents(ctx context.Context, cursor string) ([]domain.TransactionEvent, string, error) {
	if g.poll == nil {
		return nil, cursor, nil
	}
	return g.poll(ctx, cursor)
}

func (g *fakeGateway) fetchCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fetchCalls
}

func (g *fakeGateway) searchCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.searchCalls
}

// fakeNotifier 记录所有告警调用。
type fakeNotifier struct {
	mu     sync.Mutex
	alerts []string
}

func (n *fakeNotifier) Notify(ctx context.Context, message string, fields map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, message)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

var testSecret = []byte("test-gateway-secret")

type testDeps struct {
	repo     *infrastructure.MemoryOrderRepository
	gateway  *fakeGateway
	locker   *infrastructure.LeaseLock
	notifier *fakeNotifier
	cursor   *infrastructure.MemoryCursorStore
}

func newTestService(cfg Config) (*ReconciliationService, *testDeps) {
	deps := &testDeps{
		repo:     infrastructure.NewMemoryOrderRepository(),
		gateway:  &fakeGateway{},
		locker:   infrastructure.NewLeaseLock(30 * time.Second),
		notifier: &fakeNotifier{},
		cursor:   infrastructure.NewMemoryCursorStore(),
	}
	if cfg.Secret == nil {
		cfg.Secret = testSecret
	}
	if cfg.GatewayID == "" {
		cfg.GatewayID = "gw-test"
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Millisecond
	}
	svc := NewReconciliationService(deps.repo, deps.gateway, deps.locker, deps.notifier, deps.cursor, nil, cfg)
	return svc, deps
}

// signedCallback 构造一条验签可通过的回调。
func signedCallback(orderNumber string, amountMinor int64, errorCode, rawStatus, txID string) map[string]string {
	params := map[string]string{
		"onpay_reference": orderNumber,
		"onpay_amount":    strconv.FormatInt(amountMinor, 10),
		"onpay_currency":  "208",
		"onpay_uuid":      txID,
		"onpay_method":    "card",
	}
	if errorCode != "" {
		params["onpay_errorcode"] = errorCode
	}
	if rawStatus != "" {
		params["onpay_status"] = rawStatus
	}
	params[domain.SignatureParam] = domain.CalculateSignature(params, testSecret)
	return params
}
