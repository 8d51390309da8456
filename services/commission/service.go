package commission

import (
	"context"
	"time"

	"accrualplane/pkg/errutil"
	"accrualplane/services/allocation"
	"accrualplane/services/referral"
	"accrualplane/services/subscription"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AccrualEvent identifies one settled daily accrual. EventID is the ledger
// row's ID, so replaying the same accrual reuses the same fanout keys.
type AccrualEvent struct {
	EventID      string
	SubscriberID string
	PlanID       string
	AccrualDate  string
}

// PropagateResult counts the fanout outcome for one accrual event.
type PropagateResult struct {
	Created int
	Skipped int
	Failed  int
}

// LevelTotal is one row of a per-level earnings breakdown.
type LevelTotal struct {
	Level  int             `json:"level"`
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// Summary aggregates everything an earner has been paid through fanout.
type Summary struct {
	EarnerID    string          `json:"earner_id"`
	TotalEarned decimal.Decimal `json:"total_earned"`
	Entries     int64           `json:"entries"`
	ByLevel     []LevelTotal    `json:"by_level"`
}

type Service interface {
	// Propagate walks the earner's ancestor chain and writes one commission
	// per eligible ancestor. Each ancestor is settled independently; one
	// failing write never blocks the others, and never unwinds the accrual
	// that triggered the fanout.
	Propagate(ctx context.Context, event AccrualEvent) (*PropagateResult, error)
	Summary(ctx context.Context, earnerID string) (*Summary, error)
}

type service struct {
	db       *gorm.DB
	snapshot *allocation.Snapshot
	graph    referral.Graph
	subs     subscription.Directory
	node     *snowflake.Node
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Snapshot *allocation.Snapshot
	Graph    referral.Graph
	Subs     subscription.Directory
	Node     *snowflake.Node
}

func NewService(p ServiceParams) Service {
	return &service{
		db:       p.DB,
		snapshot: p.Snapshot,
		graph:    p.Graph,
		subs:     p.Subs,
		node:     p.Node,
	}
}

func (s *service) Propagate(ctx context.Context, event AccrualEvent) (*PropagateResult, error) {
	plan, err := s.snapshot.Plan(event.PlanID)
	if err != nil {
		return nil, err
	}

	ancestors, err := s.graph.AncestorsOf(ctx, event.SubscriberID)
	if err != nil {
		return nil, err
	}

	asOf, err := time.Parse("2006-01-02", event.AccrualDate)
	if err != nil {
		return nil, errutil.BadRequest("invalid accrual date", err)
	}

	result := &PropagateResult{}
	for _, edge := range ancestors {
		level := edge.Depth

		rate := s.snapshot.Rate(level)
		if rate.IsZero() {
			// Past the last rate band; every deeper ancestor is too.
			break
		}

		// Gate on the ancestor's own tier: their best active plan caps
		// how deep below themselves they may earn. An ineligible ancestor
		// is skipped without shortening the walk for deeper ones.
		depth, gateErr := s.earnDepth(ctx, edge.ReferrerID, asOf)
		if gateErr != nil {
			result.Failed++
			zap.L().Error("commission eligibility check failed",
				zap.String("earner_id", edge.ReferrerID),
				zap.String("source_event_id", event.EventID),
				zap.Error(gateErr),
			)
			continue
		}
		if level > depth {
			result.Skipped++
			continue
		}

		record := &Record{
			ID:                 s.node.Generate().String(),
			EarnerID:           edge.ReferrerID,
			SourceSubscriberID: event.SubscriberID,
			SourceEventID:      event.EventID,
			Level:              level,
			Rate:               rate,
			Amount:             rate.Mul(plan.DailyBaseValue),
			AccrualDate:        event.AccrualDate,
			CreatedAt:          time.Now(),
		}

		res := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(record)
		if res.Error != nil {
			result.Failed++
			zap.L().Error("failed to write commission record",
				zap.String("earner_id", edge.ReferrerID),
				zap.String("source_event_id", event.EventID),
				zap.Int("level", level),
				zap.Error(res.Error),
			)
			continue
		}
		if res.RowsAffected == 0 {
			result.Skipped++
			continue
		}
		result.Created++
	}

	return result, nil
}

// earnDepth returns how many levels below themselves the earner may collect
// on, taking the deepest depth across their active plans. Zero when they
// hold no active plan.
func (s *service) earnDepth(ctx context.Context, earnerID string, asOf time.Time) (int, error) {
	subs, err := s.subs.ListActiveBySubscriber(ctx, earnerID, asOf)
	if err != nil {
		return 0, err
	}
	depth := 0
	for _, sub := range subs {
		if d := s.snapshot.CommissionDepth(sub.PlanID); d > depth {
			depth = d
		}
	}
	return depth, nil
}

func (s *service) Summary(ctx context.Context, earnerID string) (*Summary, error) {
	summary := &Summary{EarnerID: earnerID, TotalEarned: decimal.Zero}

	rows := []struct {
		Level  int
		Count  int64
		Amount decimal.Decimal
	}{}
	err := s.db.WithContext(ctx).
		Model(&Record{}).
		Select("level, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount").
		Where("earner_id = ?", earnerID).
		Group("level").
		Order("level asc").
		Scan(&rows).Error
	if err != nil {
		return nil, errutil.Unavailable("failed to summarize commissions", err)
	}

	for _, row := range rows {
		summary.Entries += row.Count
		summary.TotalEarned = summary.TotalEarned.Add(row.Amount)
		summary.ByLevel = append(summary.ByLevel, LevelTotal{
			Level:  row.Level,
			Count:  row.Count,
			Amount: row.Amount,
		})
	}
	return summary, nil
}
