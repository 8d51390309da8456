package httpapi

import (
	"net/http"

	"accrualplane/pkg/config"
	"accrualplane/pkg/health"
	"accrualplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

type RouterParams struct {
	fx.In
	Config  *config.Config
	Health  health.HealthService
	Handler *Handler
}

// NewRouter assembles the admin surface. Everything behind /v1 is an
// operator endpoint; batch work itself flows through the queue, these
// exist for replays, audits and repairs.
func NewRouter(p RouterParams) http.Handler {
	if p.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Error())

	r.GET("/healthz", p.Health.Liveness)
	r.GET("/readyz", p.Health.Readiness)

	v1 := r.Group("/v1")
	{
		v1.POST("/distribution/run", p.Handler.RunDistribution)
		v1.GET("/distribution/status", p.Handler.DistributionStatus)
		v1.POST("/wallet/reconcile/:subscriber_id", p.Handler.ReconcileWallet)
		v1.GET("/wallet/:subscriber_id", p.Handler.WalletBalance)
		v1.POST("/rank-bonus/evaluate", p.Handler.EvaluateRankBonus)
		v1.GET("/commissions/:earner_id", p.Handler.CommissionSummary)
	}

	return r
}

var Module = fx.Module("httpapi",
	fx.Provide(
		NewHandler,
		NewRouter,
	),
)
