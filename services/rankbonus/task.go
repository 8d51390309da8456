package rankbonus

import (
	"context"
	"encoding/json"
	"fmt"

	"accrualplane/pkg/sequence"
	"accrualplane/services/notify"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const TypeMonthlyEvaluate = "rankbonus:evaluate:monthly"

type MonthlyEvaluatePayload struct {
	Month string `json:"month"`
}

func NewMonthlyEvaluateTask(month string) (*asynq.Task, error) {
	payload, err := json.Marshal(MonthlyEvaluatePayload{Month: month})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeMonthlyEvaluate, payload), nil
}

type Handler struct {
	service  Service
	notifier notify.Notifier
	seq      sequence.Generator
}

type HandlerParams struct {
	fx.In
	Service  Service
	Notifier notify.Notifier
	Seq      sequence.Generator
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{service: p.Service, notifier: p.Notifier, seq: p.Seq}
}

func (h *Handler) HandleMonthlyEvaluate(ctx context.Context, t *asynq.Task) error {
	var payload MonthlyEvaluatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid monthly evaluate payload: %w", err)
	}

	code, err := h.seq.NextRankBonusRunCode(ctx, payload.Month)
	if err != nil {
		zap.L().Warn("could not allocate run code", zap.Error(err))
	}

	zap.L().Info("monthly rank evaluation starting",
		zap.String("run_code", code),
		zap.String("month", payload.Month),
	)

	summary, err := h.service.EvaluateAll(ctx, payload.Month)
	if err != nil {
		return err
	}

	if nerr := h.notifier.Notify(ctx, notify.Event{
		Subject: "monthly rank evaluation finished",
		Body:    fmt.Sprintf("run %s for %s settled", code, payload.Month),
		Fields: map[string]string{
			"evaluated": fmt.Sprintf("%d", summary.Evaluated),
			"paid":      fmt.Sprintf("%d", summary.Paid),
			"failed":    fmt.Sprintf("%d", summary.Failed),
		},
	}); nerr != nil {
		zap.L().Warn("could not deliver run notice", zap.Error(nerr))
	}
	return nil
}
