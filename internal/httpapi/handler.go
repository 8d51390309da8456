package httpapi

import (
	"net/http"
	"time"

	"accrualplane/pkg/errutil"
	"accrualplane/services/commission"
	"accrualplane/services/distribution"
	"accrualplane/services/rankbonus"
	"accrualplane/services/wallet"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

type Handler struct {
	distributions distribution.Service
	wallets       wallet.Service
	commissions   commission.Service
	rankBonuses   rankbonus.Service
}

type HandlerParams struct {
	fx.In
	Distributions distribution.Service
	Wallets       wallet.Service
	Commissions   commission.Service
	RankBonuses   rankbonus.Service
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		distributions: p.Distributions,
		wallets:       p.Wallets,
		commissions:   p.Commissions,
		rankBonuses:   p.RankBonuses,
	}
}

// RunDistribution triggers a synchronous run for the given day, defaulting
// to today. Operators use it to replay or backfill a day; the scheduler's
// queued runs are the normal path.
func (h *Handler) RunDistribution(c *gin.Context) {
	asOf := time.Now()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			c.Error(errutil.BadRequest("invalid date, expected YYYY-MM-DD", err))
			return
		}
		asOf = parsed
	}

	summary, err := h.distributions.Run(c.Request.Context(), asOf)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) DistributionStatus(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = time.Now().Format(dateLayout)
	}

	status, err := h.distributions.Status(c.Request.Context(), date)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) ReconcileWallet(c *gin.Context) {
	subscriberID := c.Param("subscriber_id")

	result, err := h.wallets.Reconcile(c.Request.Context(), subscriberID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) WalletBalance(c *gin.Context) {
	subscriberID := c.Param("subscriber_id")

	w, err := h.wallets.Balance(c.Request.Context(), subscriberID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *Handler) EvaluateRankBonus(c *gin.Context) {
	month := c.Query("month")
	if month == "" {
		month = time.Now().AddDate(0, -1, 0).Format(monthLayout)
	}

	summary, err := h.rankBonuses.EvaluateAll(c.Request.Context(), month)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) CommissionSummary(c *gin.Context) {
	earnerID := c.Param("earner_id")

	summary, err := h.commissions.Summary(c.Request.Context(), earnerID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
