package task

import (
	"context"
	"time"

	"accrualplane/pkg/rediskey"
	pkgtask "accrualplane/pkg/task"
	"accrualplane/services/distribution"
	"accrualplane/services/rankbonus"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// triggerTTL keeps a period's trigger marker around long enough to cover
// replays and restarts within the period.
const triggerTTL = 45 * 24 * time.Hour

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	enqueuer pkgtask.Enqueuer
	rdb      *redis.Client
}

type Params struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Enqueuer pkgtask.Enqueuer
	Redis    *redis.Client
}

func NewService(p Params) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		enqueuer: p.Enqueuer,
		rdb:      p.Redis,
	}
}

// firstTrigger marks the period as triggered and reports whether this call
// won. On a redis failure it reports true: a duplicate enqueue is harmless
// because the runs themselves are idempotent, a lost run is not.
func (s *Service) firstTrigger(ctx context.Context, key string) bool {
	ok, err := s.rdb.SetNX(ctx, key, "1", triggerTTL).Result()
	if err != nil {
		zap.L().Warn("trigger marker unavailable, enqueueing anyway",
			zap.String("key", key),
			zap.Error(err),
		)
		return true
	}
	return ok
}

// EnqueueDailyDistribution hands one day's run to the queue and records the
// handoff. Double-enqueueing a day is harmless downstream, so the audit row
// is informational rather than a lock.
func (s *Service) EnqueueDailyDistribution(ctx context.Context, date string) error {
	if !s.firstTrigger(ctx, rediskey.BuildDistributionRunKey(date)) {
		zap.L().Info("daily distribution already triggered", zap.String("date", date))
		return nil
	}

	t, err := distribution.NewDailyRunTask(date)
	if err != nil {
		return err
	}
	return s.enqueue(ctx, t, distribution.TypeDailyRun, date, asynq.Queue("critical"))
}

// EnqueueMonthlyRankEvaluation hands one month's rank sweep to the queue.
func (s *Service) EnqueueMonthlyRankEvaluation(ctx context.Context, month string) error {
	if !s.firstTrigger(ctx, rediskey.BuildRankBonusRunKey(month)) {
		zap.L().Info("rank evaluation already triggered", zap.String("month", month))
		return nil
	}

	t, err := rankbonus.NewMonthlyEvaluateTask(month)
	if err != nil {
		return err
	}
	return s.enqueue(ctx, t, rankbonus.TypeMonthlyEvaluate, month, asynq.Queue("default"))
}

func (s *Service) enqueue(ctx context.Context, t *asynq.Task, name, period string, opts ...asynq.Option) error {
	job := Job{
		ID:        s.node.Generate().String(),
		TaskName:  name,
		Period:    period,
		Status:    "pending",
		Metadata:  datatypes.JSON(t.Payload()),
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		return err
	}

	info, err := s.enqueuer.Enqueue(t, opts...)
	if err != nil {
		s.db.WithContext(ctx).Model(&job).Updates(map[string]any{
			"status":    "failed",
			"error_msg": err.Error(),
		})
		return err
	}

	s.db.WithContext(ctx).Model(&job).Update("status", "enqueued")
	zap.L().Info("enqueued batch job",
		zap.String("task", name),
		zap.String("period", period),
		zap.String("queue", info.Queue),
		zap.String("job_id", job.ID),
	)
	return nil
}
