package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"accrualplane/internal/migrate"
	"accrualplane/pkg/config"
	"accrualplane/pkg/db"
	"accrualplane/pkg/logger"
	"accrualplane/pkg/redis"
	"accrualplane/pkg/sequence"
	pkgtask "accrualplane/pkg/task"
	"accrualplane/services/allocation"
	"accrualplane/services/commission"
	"accrualplane/services/distribution"
	"accrualplane/services/notify"
	"accrualplane/services/rankbonus"
	"accrualplane/services/referral"
	"accrualplane/services/subscription"
	"accrualplane/services/task"
	"accrualplane/services/wallet"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		migrate.Module,
		redis.Module,
		pkgtask.Client,
		pkgtask.Server,
		sequence.Module,
		fx.Provide(provideSnowflakeNode),
		allocation.Module,
		subscription.Module,
		referral.Module,
		wallet.Module,
		commission.Module,
		distribution.WorkerModule,
		rankbonus.WorkerModule,
		notify.Module,
		task.Module,
		fx.Invoke(registerHandlers),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(2)
}

func registerHandlers(mux *asynq.ServeMux, dist *distribution.Handler, ranks *rankbonus.Handler) {
	mux.HandleFunc(distribution.TypeDailyRun, dist.HandleDailyRun)
	mux.HandleFunc(rankbonus.TypeMonthlyEvaluate, ranks.HandleMonthlyEvaluate)
	mux.HandleFunc(notify.TypeAdminNotice, notify.HandleAdminNotice)

	zap.L().Info("[Asynq] task handlers registered")
}
