package application

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"paysync/internal/pkg/logger"
	"paysync/internal/service/payment/domain"
)

// SweepReport 汇总一轮对账扫描的结果。
type SweepReport struct {
	Checked    int
	Finalized  int
	Deleted    int64
	Failures   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Sweep 执行一轮对账扫描：
//  1. 对未过期的预下单逐一查询网关，命中活跃未扣款交易的走
//     与回调相同的 Finalized 迁移；
//  2. 第二遍删除已过期且始终未匹配到交易的预下单。
//
// 单个订单的失败被隔离：记录日志、计入报告，绝不中断整轮扫描。
func (s *ReconciliationService) Sweep(ctx context.Context) (SweepReport, error) {
	ctx, span := s.tracer.Start(ctx, "reconcile.Sweep")
	defer span.End()

	report := SweepReport{StartedAt: s.now()}

	pending, err := s.repo.ListPendingProvisional(ctx)
	if err != nil {
		span.RecordError(err)
		return report, errors.Wrap(err, "list provisional orders")
	}

	sem := semaphore.NewWeighted(s.cfg.SweepParallelism)
	var wg sync.WaitGroup
	var mu sync.Mutex

	now := s.now()
	for _, record := range pending {
		if record.Expired(now) {
			// 已过期的留给第二遍统一删除
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(record *domain.OrderRecord) {
			defer wg.Done()
			defer sem.Release(1)

			// 单个订单的网关查询独立限时，慢请求不能拖垮整批
			orderCtx, cancel := context.WithTimeout(ctx, s.cfg.PerOrderTimeout)
			defer cancel()

			finalized, err := s.checkPendingOrder(orderCtx, record)

			mu.Lock()
			defer mu.Unlock()
			report.Checked++
			switch {
			case err != nil:
				report.Failures++
				sweepFailures.Inc()
				logger.Ctx(ctx).Error().Err(err).
					Str("order_number", record.OrderNumber).
					Msg("sweep check failed, continuing with remaining orders")
			case finalized:
				report.Finalized++
				sweepFinalized.Inc()
			}
		}(record)
	}
	wg.Wait()

	deleted, err := s.repo.DeleteExpired(ctx, now)
	if err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Msg("sweep failed to delete expired provisional orders")
	} else {
		report.Deleted = deleted
		if deleted > 0 {
			sweepDeleted.Add(float64(deleted))
		}
	}

	report.FinishedAt = s.now()
	span.SetAttributes(
		attribute.Int("sweep.checked", report.Checked),
		attribute.Int("sweep.finalized", report.Finalized),
		attribute.Int64("sweep.deleted", report.Deleted),
		attribute.Int("sweep.failures", report.Failures),
	)
	return report, nil
}

// checkPendingOrder 查询网关里与该订单号关联的交易，
// 命中活跃未扣款的交易就执行 Finalized 迁移。
func (s *ReconciliationService) checkPendingOrder(ctx context.Context, record *domain.OrderRecord) (bool, error) {
	transactions, err := s.gateway.SearchTransactions(ctx, record.OrderNumber)
	if err != nil {
		return false, errors.Wrapf(domain.ErrUpstreamUnavailable, "search transactions for %s: %v", record.OrderNumber, err)
	}

	var match *domain.TransactionDetail
	for _, tx := range transactions {
		if domain.SweepIgnoresStatus(tx.Status) {
			continue
		}
		if tx.ActiveAndUncharged() {
			match = tx
			break
		}
	}
	if match == nil {
		// 没有可确认的交易：未过期就原样保留，过期的由第二遍删除
		return false, nil
	}

	status := domain.MapTransactionStatus(match.Status)
	_, err = s.reconcile(ctx, "sweep", record.OrderNumber, status, match.Details())
	if errors.Is(err, domain.ErrLockContention) {
		// 后台路径跳过即可：回调正在处理同一订单，幂等 upsert 保证无害
		logger.Ctx(ctx).Info().
			Str("order_number", record.OrderNumber).
			Msg("sweep skipped order held by concurrent processor")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
