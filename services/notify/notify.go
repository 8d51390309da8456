package notify

import (
	"context"
	"encoding/json"

	"accrualplane/pkg/task"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const TypeAdminNotice = "notify:admin"

// Event is a human-readable operational notice for the admin channel:
// batch completions, drift corrections, run failures.
type Event struct {
	Subject string            `json:"subject"`
	Body    string            `json:"body"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Notifier delivers admin notices. Delivery is best-effort everywhere it is
// called: a dropped notice never fails the batch that produced it.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type queueNotifier struct {
	enqueuer task.Enqueuer
}

type NotifierParams struct {
	fx.In
	Enqueuer task.Enqueuer
}

// NewNotifier returns a Notifier that hands events to the low-priority
// queue; the worker drains them off the hot path.
func NewNotifier(p NotifierParams) Notifier {
	return &queueNotifier{enqueuer: p.Enqueuer}
}

func (n *queueNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = n.enqueuer.Enqueue(
		asynq.NewTask(TypeAdminNotice, payload),
		asynq.Queue("low"),
		asynq.MaxRetry(3),
	)
	return err
}

// Nop discards every event. Used by tests and by processes that run
// without a queue connection.
type Nop struct{}

func (Nop) Notify(ctx context.Context, event Event) error { return nil }

// HandleAdminNotice is the worker-side sink. Notices terminate in the
// structured log for now; a chat or mail transport slots in here.
func HandleAdminNotice(ctx context.Context, t *asynq.Task) error {
	var event Event
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return err
	}

	fields := []zap.Field{zap.String("subject", event.Subject), zap.String("body", event.Body)}
	for k, v := range event.Fields {
		fields = append(fields, zap.String(k, v))
	}
	zap.L().Info("admin notice", fields...)
	return nil
}
