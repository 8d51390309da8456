package task

import (
	"context"
	"time"

	"accrualplane/pkg/config"
	"accrualplane/services/subscription"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Scheduler struct {
	service *Service
	subs    subscription.Directory
	hour    int
	minute  int
}

type SchedulerParams struct {
	fx.In
	Config  *config.Config
	Service *Service
	Subs    subscription.Directory
}

func NewScheduler(p SchedulerParams) *Scheduler {
	return &Scheduler{
		service: p.Service,
		subs:    p.Subs,
		hour:    p.Config.Scheduler.DailyHour,
		minute:  p.Config.Scheduler.DailyMinute,
	}
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go s.run(context.Background())
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started accrual scheduler",
		zap.Int("hour", s.hour),
		zap.Int("minute", s.minute),
	)

	for {
		now := time.Now()
		next := nextRunTime(now, s.hour, s.minute)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)
		select {
		case <-time.After(sleepDuration):
			s.runDaily(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

// runDaily sweeps overdue subscriptions first so an expired subscription
// never accrues another day, then hands the day's run to the queue. On the
// first of the month it also triggers the previous month's rank sweep.
func (s *Scheduler) runDaily(ctx context.Context) {
	start := time.Now()
	date := start.Format("2006-01-02")

	if _, err := s.subs.ExpireOverdue(ctx, start); err != nil {
		zap.L().Error("[Scheduler] overdue sweep failed", zap.Error(err))
	}

	if err := s.service.EnqueueDailyDistribution(ctx, date); err != nil {
		zap.L().Error("[Scheduler] failed to enqueue daily distribution",
			zap.String("date", date),
			zap.Error(err),
		)
	}

	if start.Day() == 1 {
		month := start.AddDate(0, -1, 0).Format("2006-01")
		if err := s.service.EnqueueMonthlyRankEvaluation(ctx, month); err != nil {
			zap.L().Error("[Scheduler] failed to enqueue rank evaluation",
				zap.String("month", month),
				zap.Error(err),
			)
		}
	}

	zap.L().Info("[Scheduler] daily trigger finished",
		zap.String("date", date),
		zap.Duration("duration", time.Since(start)),
	)
}

func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
