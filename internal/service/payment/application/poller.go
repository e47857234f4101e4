package application

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"paysync/internal/pkg/logger"
	"paysync/internal/service/payment/domain"
)

// PollEvents 拉取并处理下一批网关交易事件。
// 游标只在整批处理完之后才推进并持久化；去重集合里命中的交易
// 直接跳过，省掉一次网关详情请求。网关拉取失败不在本地重试，
// 留给下一个调度周期。
func (s *ReconciliationService) PollEvents(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "reconcile.PollEvents")
	defer span.End()

	cursor, err := s.cursor.Load(ctx)
	if err != nil {
		// 游标丢失只是退化：从网关默认窗口重拉，幂等处理保证无害
		logger.Ctx(ctx).Warn().Err(err).Msg("cursor load failed, polling from gateway default window")
		cursor = ""
	}

	events, nextCursor, err := s.gateway.PollEvents(ctx, cursor)
	if err != nil {
		span.RecordError(err)
		return errors.Wrapf(domain.ErrUpstreamUnavailable, "poll transaction events: %v", err)
	}
	pollEventsTotal.Add(float64(len(events)))
	span.SetAttributes(attribute.Int("poll.events", len(events)))

	for _, event := range events {
		if event.TransactionID == "" {
			continue
		}
		if s.dedup.Seen(event.TransactionID) {
			pollEventsDeduped.Inc()
			continue
		}
		if err := s.processEvent(ctx, event); err != nil {
			// 失败的事件不进去重集合；该交易的状态最终由对账扫描兜底修复
			logger.Ctx(ctx).Error().Err(err).
				Str("transaction_id", event.TransactionID).
				Msg("failed to process transaction event")
			continue
		}
		s.dedup.Add(event.TransactionID)
	}

	if nextCursor != "" && nextCursor != cursor {
		if err := s.cursor.Store(ctx, nextCursor); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to persist event cursor")
		}
	}
	return nil
}

// processEvent 拉取交易详情并路由到与回调相同的映射/upsert 路径。
func (s *ReconciliationService) processEvent(ctx context.Context, event domain.TransactionEvent) error {
	detail, err := s.gateway.FetchTransaction(ctx, event.TransactionID)
	if err != nil {
		return errors.Wrapf(domain.ErrUpstreamUnavailable, "fetch transaction %s: %v", event.TransactionID, err)
	}

	// 超过时间窗的陈旧事件直接跳过
	if !detail.CreatedAt.IsZero() && s.now().Sub(detail.CreatedAt) > s.cfg.EventAgeLimit {
		pollEventsStale.Inc()
		return nil
	}
	if detail.OrderNumber == "" {
		return errors.Errorf("transaction %s has no order reference", event.TransactionID)
	}

	// 轮询路径的状态映射：没有错误码，只看交易原始状态
	status := domain.MapTransactionStatus(detail.Status)
	_, err = s.reconcile(ctx, "poll", detail.OrderNumber, status, detail.Details())
	if errors.Is(err, domain.ErrLockContention) {
		// 跳过并留待重试；事件未进去重集合，不会丢失
		logger.Ctx(ctx).Info().
			Str("order_number", detail.OrderNumber).
			Msg("poll skipped order held by concurrent processor")
		return err
	}
	return err
}
