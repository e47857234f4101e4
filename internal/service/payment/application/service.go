package application

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"paysync/internal/pkg/logger"
	"paysync/internal/service/payment/domain"
	"paysync/internal/service/payment/domain/port"
)

// Config 是对账引擎的运行参数，由组装根从 bootstrap 配置换算注入。
type Config struct {
	GatewayID        string
	Secret           []byte
	FrontendURL      string
	BackendURL       string
	OrderExpiry      time.Duration
	EventAgeLimit    time.Duration
	PerOrderTimeout  time.Duration
	SweepParallelism int64
	DedupCapacity    int
	FinalizeRetries  int
	RetryBackoff     time.Duration
}

func (c *Config) applyDefaults() {
	if c.OrderExpiry <= 0 {
		c.OrderExpiry = 30 * time.Minute
	}
	if c.EventAgeLimit <= 0 {
		c.EventAgeLimit = 7 * 24 * time.Hour
	}
	if c.PerOrderTimeout <= 0 {
		c.PerOrderTimeout = 5 * time.Second
	}
	if c.SweepParallelism <= 0 {
		c.SweepParallelism = 4
	}
	if c.DedupCapacity <= 0 {
		c.DedupCapacity = 1000
	}
	if c.FinalizeRetries <= 0 {
		c.FinalizeRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
}

// ReconciliationService 是订单状态对账引擎：消费已验签的回调、
// 轮询到的交易事件以及周期性扫描结果，全部汇聚到同一条幂等
// upsert 路径和同一把按订单号粒度的锁上。
type ReconciliationService struct {
	repo      domain.OrderRepository
	gateway   port.GatewayClient
	locker    port.OrderLocker
	notifier  port.AlertNotifier
	cursor    port.CursorStore
	publisher port.StatusPublisher
	tracer    trace.Tracer
	cfg       Config

	dedup   *DedupSet
	pending *PendingOrderCache
	now     func() time.Time
}

func NewReconciliationService(
	repo domain.OrderRepository,
	gateway port.GatewayClient,
	locker port.OrderLocker,
	notifier port.AlertNotifier,
	cursor port.CursorStore,
	publisher port.StatusPublisher,
	cfg Config,
) *ReconciliationService {
	cfg.applyDefaults()
	return &ReconciliationService{
		repo:      repo,
		gateway:   gateway,
		locker:    locker,
		notifier:  notifier,
		cursor:    cursor,
		publisher: publisher,
		tracer:    otel.Tracer("payment-reconciliation"),
		cfg:       cfg,
		dedup:     NewDedupSet(cfg.DedupCapacity),
		pending:   NewPendingOrderCache(cfg.OrderExpiry),
		now:       time.Now,
	}
}

// ApplyCallback 处理一条网关推送回调。
// 验签失败直接拒绝（fail closed），不产生任何存储变更；
// 验签通过后走与轮询路径相同的加锁 upsert 流程。
func (s *ReconciliationService) ApplyCallback(ctx context.Context, params map[string]string) (*domain.OrderRecord, error) {
	ctx, span := s.tracer.Start(ctx, "reconcile.ApplyCallback")
	defer span.End()

	callbacksReceived.Inc()

	if !domain.VerifySignature(params, s.cfg.Secret) {
		callbacksRejected.Inc()
		span.SetStatus(codes.Error, "signature verification failed")
		return nil, domain.ErrInvalidSignature
	}

	evt, err := domain.ParseCallbackEvent(params)
	if err != nil {
		callbacksRejected.Inc()
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("order.number", evt.Reference))

	// 回调路径的状态映射：错误码优先
	status := domain.MapCallbackStatus(evt.ErrorCode, evt.RawStatus)

	record, err := s.reconcile(ctx, "callback", evt.Reference, status, evt.Details())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return record, nil
}

// reconcile 是回调与轮询共用的幂等 upsert 核心。
// 约定：同一 orderNumber 的读改写全程持有租约锁；Provisional→Finalized
// 迁移必须是一个原子事务；状态回退记录日志后丢弃而不是报错。
func (s *ReconciliationService) reconcile(ctx context.Context, source, orderNumber string, status domain.Status, details domain.GatewayDetails) (*domain.OrderRecord, error) {
	lease, err := s.locker.TryAcquire(ctx, orderNumber)
	if err != nil {
		reconcileOutcomes.WithLabelValues(source, "lock_contention").Inc()
		return nil, errors.Wrapf(err, "order %s", orderNumber)
	}
	defer lease.Release()

	now := s.now()

	record, err := s.repo.FindByOrderNumber(ctx, orderNumber, domain.KindAny)
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		// 回调先于预下单到达的防御路径：直接落一条 Finalized 记录
		fresh := domain.NewFinalizedOrder(orderNumber, status, details, now)
		if err := s.createWithRetry(ctx, fresh); err != nil {
			reconcileOutcomes.WithLabelValues(source, "persist_failed").Inc()
			return nil, err
		}
		reconcileOutcomes.WithLabelValues(source, "created").Inc()
		s.publishChange(ctx, fresh)
		return fresh, nil

	case err != nil:
		return nil, err
	}

	if record.Lifecycle == domain.LifecycleProvisional {
		finalized := domain.FinalizeProvisional(record, status, details, now)
		saved, err := s.finalizeWithRetry(ctx, finalized, record.ID)
		if err != nil {
			reconcileOutcomes.WithLabelValues(source, "persist_failed").Inc()
			return nil, err
		}
		s.pending.Remove(orderNumber)
		reconcileOutcomes.WithLabelValues(source, "finalized").Inc()
		s.publishChange(ctx, saved)
		return saved, nil
	}

	// 已确认订单：只接受不回退的状态补丁
	if err := record.ApplyStatus(status, details, now); err != nil {
		if errors.Is(err, domain.ErrStatusRegression) {
			callbacksDiscarded.Inc()
			reconcileOutcomes.WithLabelValues(source, "regression_discarded").Inc()
			logger.Ctx(ctx).Warn().
				Str("order_number", orderNumber).
				Str("current_status", string(record.Status)).
				Str("event_status", string(status)).
				Msg("discarding event that would regress order status")
			return record, nil
		}
		return nil, err
	}

	saved, err := s.repo.PatchStatus(ctx, record.ID, record.Status, record.GatewayDetails, record.UpdatedAt)
	if err != nil {
		reconcileOutcomes.WithLabelValues(source, "persist_failed").Inc()
		return nil, errors.Wrapf(domain.ErrPersistenceConflict, "patch order %s: %v", orderNumber, err)
	}
	reconcileOutcomes.WithLabelValues(source, "patched").Inc()
	s.publishChange(ctx, saved)
	return saved, nil
}

// createWithRetry / finalizeWithRetry 对确认性写入做有限次线性退避重试。
// 丢掉这笔写入就丢掉了资金相关状态，所以这里值得阻塞式重试；
// 重试耗尽只触发告警侧信道，不向网关抛出异常。

func (s *ReconciliationService) createWithRetry(ctx context.Context, record *domain.OrderRecord) error {
	return s.retryWrite(ctx, record.OrderNumber, func() error {
		return s.repo.Create(ctx, record)
	})
}

func (s *ReconciliationService) finalizeWithRetry(ctx context.Context, record *domain.OrderRecord, provisionalID string) (*domain.OrderRecord, error) {
	var saved *domain.OrderRecord
	err := s.retryWrite(ctx, record.OrderNumber, func() error {
		var err error
		saved, err = s.repo.CreateFinalizedAndDeleteProvisional(ctx, record, provisionalID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *ReconciliationService) retryWrite(ctx context.Context, orderNumber string, write func() error) error {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.FinalizeRetries; attempt++ {
		lastErr = write()
		if lastErr == nil {
			return nil
		}
		if attempt < s.cfg.FinalizeRetries {
			finalizeRetries.Inc()
			select {
			case <-time.After(time.Duration(attempt) * s.cfg.RetryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	s.alert(ctx, "failed to persist finalized order", map[string]string{
		"order_number": orderNumber,
		"error":        lastErr.Error(),
	})
	return errors.Wrapf(domain.ErrPersistenceConflict, "order %s: %v", orderNumber, lastErr)
}

// PreparePayment 为前端发起支付构造带签名的网关参数，
// 同时创建带过期时间的预下单记录。
func (s *ReconciliationService) PreparePayment(ctx context.Context, req *PreparePaymentRequest) (*PreparePaymentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "reconcile.PreparePayment")
	defer span.End()

	if strings.TrimSpace(req.OrderNumber) == "" {
		return nil, errors.New("orderNumber is required")
	}

	now := s.now()
	record := domain.NewProvisionalOrder(
		req.OrderNumber, req.UserID, req.TotalWithShipping,
		req.Items, req.ShippingInfo, req.BillingInfo, req.SameAsShipping,
		s.cfg.OrderExpiry, now,
	)

	if err := s.repo.Create(ctx, record); err != nil {
		span.RecordError(err)
		return nil, errors.Wrapf(domain.ErrPersistenceConflict, "create provisional %s: %v", record.OrderNumber, err)
	}
	s.pending.Put(record)

	params := map[string]string{
		"onpay_gatewayid":   s.cfg.GatewayID,
		"onpay_currency":    domain.CurrencyCodeDKK,
		"onpay_amount":      strconv.FormatInt(domain.MajorToMinor(req.TotalWithShipping), 10),
		"onpay_reference":   record.OrderNumber,
		"onpay_accepturl":   s.cfg.FrontendURL + "/order-confirmation/" + record.OrderNumber,
		"onpay_callbackurl": s.cfg.BackendURL + "/api/payment-callback",
		"onpay_declineurl":  s.cfg.FrontendURL + "/payment-failed/" + record.OrderNumber,
	}
	params[domain.SignatureParam] = domain.CalculateSignature(params, s.cfg.Secret)

	span.SetAttributes(attribute.String("order.number", record.OrderNumber))
	return &PreparePaymentResponse{Params: params}, nil
}

// VerifyReturnParams 校验 return-URL 上的网关参数并回显支付详情。
// 纯校验，不触碰存储。
func (s *ReconciliationService) VerifyReturnParams(params map[string]string) (*VerifiedPaymentDetails, error) {
	if !domain.VerifySignature(params, s.cfg.Secret) {
		return nil, domain.ErrInvalidSignature
	}

	status := "Failed"
	if params["onpay_errorcode"] == "0" {
		status = "Success"
	}
	return &VerifiedPaymentDetails{
		Amount:    params["onpay_amount"],
		Currency:  domain.NormalizeCurrency(params["onpay_currency"]),
		Reference: params["onpay_reference"],
		Status:    status,
		ErrorCode: params["onpay_errorcode"],
	}, nil
}

// GetOrderStatus 查询订单当前状态：Finalized 优先，
// 其次 Provisional（上报 Pending），都不存在才是 404。
func (s *ReconciliationService) GetOrderStatus(ctx context.Context, orderNumber string) (*OrderStatusResponse, error) {
	orderNumber = strings.ToUpper(strings.TrimSpace(orderNumber))

	record, err := s.repo.FindByOrderNumber(ctx, orderNumber, domain.KindFinalized)
	if err == nil {
		return &OrderStatusResponse{Status: record.Status, OrderDetails: record}, nil
	}
	if !errors.Is(err, domain.ErrOrderNotFound) {
		return nil, err
	}

	record, err = s.repo.FindByOrderNumber(ctx, orderNumber, domain.KindProvisional)
	if err != nil {
		return nil, err
	}
	return &OrderStatusResponse{Status: domain.StatusPending, OrderDetails: record}, nil
}

// PrunePendingCache 由调度器周期调用，清理过期的预下单快照。
func (s *ReconciliationService) PrunePendingCache() int {
	return s.pending.Prune()
}

func (s *ReconciliationService) publishChange(ctx context.Context, record *domain.OrderRecord) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishStatusChange(ctx, port.StatusChange{
		OrderNumber: record.OrderNumber,
		Lifecycle:   record.Lifecycle,
		Status:      record.Status,
		UpdatedAt:   record.UpdatedAt,
	})
}

func (s *ReconciliationService) alert(ctx context.Context, message string, fields map[string]string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, message, fields)
}
