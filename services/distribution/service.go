package distribution

import (
	"context"
	"sync/atomic"
	"time"

	"accrualplane/pkg/errutil"
	"accrualplane/services/allocation"
	"accrualplane/services/commission"
	"accrualplane/services/subscription"
	"accrualplane/services/wallet"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const dateLayout = "2006-01-02"

// runConcurrency bounds the per-subscription workers of one batch run.
const runConcurrency = 4

// Summary is the outcome of one daily run. Created + Skipped + Failed
// equals the number of eligible subscriptions observed at run start.
type Summary struct {
	Date    string `json:"date"`
	Created int64  `json:"created"`
	Skipped int64  `json:"skipped"`
	Failed  int64  `json:"failed"`
}

// Status reports how far a given day's distribution has progressed.
type Status struct {
	Date                string  `json:"date"`
	Records             int64   `json:"records"`
	ActiveSubscriptions int64   `json:"active_subscriptions"`
	CoveragePct         float64 `json:"coverage_pct"`
	Complete            bool    `json:"complete"`
}

type Service interface {
	// Run settles the day's entitlement for every active subscription.
	// Safe to invoke any number of times for the same day: already-settled
	// subscriptions are skipped, missed ones are filled in.
	Run(ctx context.Context, asOf time.Time) (*Summary, error)
	Status(ctx context.Context, date string) (*Status, error)
}

type service struct {
	db          *gorm.DB
	snapshot    *allocation.Snapshot
	subs        subscription.Directory
	wallets     wallet.Service
	commissions commission.Service
	node        *snowflake.Node
}

type ServiceParams struct {
	fx.In
	DB          *gorm.DB
	Snapshot    *allocation.Snapshot
	Subs        subscription.Directory
	Wallets     wallet.Service
	Commissions commission.Service
	Node        *snowflake.Node
}

func NewService(p ServiceParams) Service {
	return &service{
		db:          p.DB,
		snapshot:    p.Snapshot,
		subs:        p.Subs,
		wallets:     p.Wallets,
		commissions: p.Commissions,
		node:        p.Node,
	}
}

func (s *service) Run(ctx context.Context, asOf time.Time) (*Summary, error) {
	date := asOf.Format(dateLayout)

	subs, err := s.subs.ListActive(ctx, asOf)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Date: date}
	var created, skipped, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runConcurrency)
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			switch s.settleOne(gctx, date, sub) {
			case outcomeCreated:
				created.Add(1)
			case outcomeSkipped:
				skipped.Add(1)
			case outcomeFailed:
				failed.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary.Created = created.Load()
	summary.Skipped = skipped.Load()
	summary.Failed = failed.Load()

	zap.L().Info("daily distribution run finished",
		zap.String("date", date),
		zap.Int64("created", summary.Created),
		zap.Int64("skipped", summary.Skipped),
		zap.Int64("failed", summary.Failed),
	)
	return summary, nil
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeSkipped
	outcomeFailed
)

// settleOne writes the accrual record and the matching wallet credit in one
// transaction, then fans commissions out after commit. Fanout runs on the
// skipped path as well, keyed by the existing record's ID, so a fanout lost
// to an outage or a crash is repaid on the next replay; already-paid levels
// collapse into no-ops. A fanout failure never unwinds the accrual.
func (s *service) settleOne(ctx context.Context, date string, sub *subscription.Subscription) outcome {
	amount, err := s.snapshot.DailyTokens(sub.PlanID)
	if err != nil {
		zap.L().Error("subscription excluded from distribution run",
			zap.String("subscriber_id", sub.SubscriberID),
			zap.String("subscription_id", sub.ID),
			zap.String("plan_id", sub.PlanID),
			zap.Error(err),
		)
		return outcomeFailed
	}

	record := &Record{
		ID:               s.node.Generate().String(),
		SubscriberID:     sub.SubscriberID,
		SubscriptionID:   sub.ID,
		PlanID:           sub.PlanID,
		Amount:           amount,
		DistributionDate: date,
		CreatedAt:        time.Now(),
	}

	var inserted bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(record)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		inserted = true
		return s.wallets.Credit(ctx, tx, sub.SubscriberID, amount)
	})
	if err != nil {
		zap.L().Error("failed to settle daily accrual",
			zap.String("subscriber_id", sub.SubscriberID),
			zap.String("subscription_id", sub.ID),
			zap.String("date", date),
			zap.Error(err),
		)
		return outcomeFailed
	}
	if !inserted {
		// The day already settled; reuse its event ID so any fanout that
		// was lost after the original commit gets another chance.
		existing := &Record{}
		if err := s.db.WithContext(ctx).
			Where("subscriber_id = ? AND subscription_id = ? AND distribution_date = ?",
				sub.SubscriberID, sub.ID, date).
			First(existing).Error; err != nil {
			zap.L().Error("failed to load settled accrual for fanout replay",
				zap.String("subscriber_id", sub.SubscriberID),
				zap.String("subscription_id", sub.ID),
				zap.String("date", date),
				zap.Error(err),
			)
			return outcomeSkipped
		}
		record = existing
	}

	if _, err := s.commissions.Propagate(ctx, commission.AccrualEvent{
		EventID:      record.ID,
		SubscriberID: sub.SubscriberID,
		PlanID:       sub.PlanID,
		AccrualDate:  date,
	}); err != nil {
		zap.L().Error("commission fanout failed after accrual",
			zap.String("subscriber_id", sub.SubscriberID),
			zap.String("source_event_id", record.ID),
			zap.Error(err),
		)
	}

	if !inserted {
		return outcomeSkipped
	}
	return outcomeCreated
}

func (s *service) Status(ctx context.Context, date string) (*Status, error) {
	asOf, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, errutil.BadRequest("invalid date, expected YYYY-MM-DD", err)
	}

	var records int64
	if err := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("distribution_date = ?", date).
		Count(&records).Error; err != nil {
		return nil, errutil.Unavailable("failed to count distribution records", err)
	}

	active, err := s.subs.CountActive(ctx, asOf)
	if err != nil {
		return nil, err
	}

	status := &Status{
		Date:                date,
		Records:             records,
		ActiveSubscriptions: active,
	}
	if active > 0 {
		status.CoveragePct = 100 * float64(records) / float64(active)
	}
	status.Complete = active > 0 && records >= active
	return status, nil
}
