package distribution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"accrualplane/pkg/sequence"
	"accrualplane/services/notify"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const TypeDailyRun = "distribution:run:daily"

type DailyRunPayload struct {
	Date string `json:"date"`
}

// NewDailyRunTask builds the queue task for one day's run. Date is the
// distribution day in YYYY-MM-DD.
func NewDailyRunTask(date string) (*asynq.Task, error) {
	payload, err := json.Marshal(DailyRunPayload{Date: date})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDailyRun, payload), nil
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

// HandleDailyRun executes one queued distribution run. Returning an error
// lets asynq retry; a replay is harmless because the run is idempotent.
func (h *Handler) HandleDailyRun(ctx context.Context, t *asynq.Task) error {
	var payload DailyRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid daily run payload: %w", err)
	}

	asOf, err := time.Parse(dateLayout, payload.Date)
	if err != nil {
		return fmt.Errorf("invalid daily run date %q: %w", payload.Date, err)
	}

	code, err := h.seq.NextDistributionRunCode(ctx, payload.Date)
	if err != nil {
		zap.L().Warn("could not allocate run code", zap.Error(err))
	}

	zap.L().Info("daily distribution run starting",
		zap.String("run_code", code),
		zap.String("date", payload.Date),
	)

	summary, err := h.service.Run(ctx, asOf)
	if err != nil {
		return err
	}

	if nerr := h.notifier.Notify(ctx, notify.Event{
		Subject: "daily distribution run finished",
		Body:    fmt.Sprintf("run %s for %s settled", code, payload.Date),
		Fields: map[string]string{
			"created": fmt.Sprintf("%d", summary.Created),
			"skipped": fmt.Sprintf("%d", summary.Skipped),
			"failed":  fmt.Sprintf("%d", summary.Failed),
		},
	}); nerr != nil {
		zap.L().Warn("could not deliver run notice", zap.Error(nerr))
	}
	return nil
}
