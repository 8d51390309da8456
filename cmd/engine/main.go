package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"accrualplane/internal/httpapi"
	"accrualplane/internal/migrate"
	"accrualplane/pkg/config"
	"accrualplane/pkg/db"
	"accrualplane/pkg/health"
	"accrualplane/pkg/logger"
	"accrualplane/pkg/redis"
	"accrualplane/pkg/server"
	"accrualplane/services/allocation"
	"accrualplane/services/commission"
	"accrualplane/services/distribution"
	"accrualplane/services/referral"
	"accrualplane/services/subscription"
	"accrualplane/services/wallet"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		migrate.Module,
		redis.Module,
		health.Module,
		fx.Provide(
			provideTracerProvider,
			provideSnowflakeNode,
		),
		allocation.Module,
		subscription.Module,
		referral.Module,
		wallet.Module,
		commission.Module,
		distribution.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
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

func provideTracerProvider() trace.TracerProvider {
	return otel.GetTracerProvider()
}

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
