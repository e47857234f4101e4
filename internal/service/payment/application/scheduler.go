package application

import (
	"context"
	"sync"
	"time"

	"paysync/internal/pkg/logger"
)

// Scheduler 驱动周期性的对账扫描与事件轮询。
// 每个 tick 带独立超时；tick 内的网关失败只记录日志，
// 下个 tick 自然重试，绝不在调度循环里原地阻塞重试。
type Scheduler struct {
	svc           *ReconciliationService
	sweepInterval time.Duration
	pollInterval  time.Duration
	tickTimeout   time.Duration

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func NewScheduler(svc *ReconciliationService, sweepInterval, pollInterval, tickTimeout time.Duration) *Scheduler {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	if tickTimeout <= 0 {
		tickTimeout = 45 * time.Second
	}
	return &Scheduler{
		svc:           svc,
		sweepInterval: sweepInterval,
		pollInterval:  pollInterval,
		tickTimeout:   tickTimeout,
		stop:          make(chan struct{}),
	}
}

// Start 启动后台循环。这是一个非阻塞方法。
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(2)
	go s.loop(ctx, "sweep", s.sweepInterval, func(tickCtx context.Context) error {
		report, err := s.svc.Sweep(tickCtx)
		if err == nil {
			logger.Ctx(tickCtx).Info().
				Int("checked", report.Checked).
				Int("finalized", report.Finalized).
				Int64("deleted", report.Deleted).
				Int("failures", report.Failures).
				Msg("sweep finished")
		}
		s.svc.PrunePendingCache()
		return err
	})
	go s.loop(ctx, "poll", s.pollInterval, s.svc.PollEvents)
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, tick func(context.Context) error) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Ctx(ctx).Info().Str("task", name).Dur("interval", interval).Msg("scheduler loop started")
	for {
		select {
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, s.tickTimeout)
			if err := tick(tickCtx); err != nil {
				logger.Ctx(tickCtx).Error().Err(err).
					Str("task", name).
					Msg("scheduled tick failed, will retry on next tick")
			}
			cancel()
		case <-s.stop:
			logger.Ctx(ctx).Info().Str("task", name).Msg("scheduler loop stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop 停止调度并等待在途的 tick 结束。
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}
